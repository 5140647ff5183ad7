// Package configfile parses the NGDP-native line-based "key = value"
// format used by Build-Config, CDN-Config and Patch-Config objects, and
// exposes typed views over the resulting map.
package configfile

import (
	"bufio"
	"io"
	"strings"
)

// Values is the raw parsed key=value map. Duplicate keys are concatenated
// with a newline separator, matching the original "blizini" reader.
type Values map[string]string

// Parse reads a key=value document. Blank lines and lines starting with
// '#' are ignored; everything before the first '=' is the key, everything
// after is the value, both trimmed of surrounding whitespace.
func Parse(r io.Reader) (Values, error) {
	v := Values{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if existing, ok := v[key]; ok {
			v[key] = existing + "\n" + value
		} else {
			v[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseString is a convenience wrapper around Parse for in-memory strings.
func ParseString(s string) (Values, error) {
	return Parse(strings.NewReader(s))
}

// KeyPair is a (content-key, encoding-key) pair, as used by the role
// fields of a Build-Config (root, install, download, encoding, size).
type KeyPair struct {
	CKey string
	EKey string
}

// Empty reports whether neither half of the pair is set.
func (p KeyPair) Empty() bool { return p.CKey == "" && p.EKey == "" }

func parseKeyPair(raw string) KeyPair {
	fields := strings.Fields(raw)
	switch len(fields) {
	case 0:
		return KeyPair{}
	case 1:
		return KeyPair{CKey: fields[0]}
	default:
		return KeyPair{CKey: fields[0], EKey: fields[1]}
	}
}

func fieldsN(raw string, n int) []string {
	fields := strings.Fields(raw)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}
