package remote

import "strings"

// JoinPath composes a base path and a relative path the way CDN request
// paths are composed: a trailing slash on base is preserved (one is added
// if missing before joining), a leading slash on rel is stripped, and any
// doubled slash collapses to one, except the "//" that follows a URL
// scheme such as "http:".
func JoinPath(base, rel string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	joined := base + strings.TrimPrefix(rel, "/")
	scheme := ""
	if i := strings.Index(joined, "://"); i >= 0 {
		scheme, joined = joined[:i+3], joined[i+3:]
	}
	for strings.Contains(joined, "//") {
		joined = strings.ReplaceAll(joined, "//", "/")
	}
	return scheme + joined
}
