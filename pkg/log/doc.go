/*
Package log provides structured logging for keg using zerolog.

It wraps a single global zerolog.Logger, initialized once via Init from
the root command's --log-level/--log-json flags. Console output
(human-readable, colorized) is the default for interactive CLI use;
--log-json switches to one JSON object per line for scripted or piped
invocations.
*/
package log
