// Package key implements the object key used throughout keg: a 16-byte MD5
// digest rendered as 32-character lowercase hex, and the partitioned path
// derived from it.
package key

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/cuemby/keg/pkg/kegerr"
)

// Size is the length in bytes of a raw object key.
const Size = 16

// HexLen is the length of the lowercase hex encoding of a key.
const HexLen = Size * 2

// Normalize lowercases a hex key and validates its length. It does not
// require the string to already be the full 32 characters: callers that
// only need the partition prefix may pass a shorter prefix, but Normalize
// always fails under 4 characters.
func Normalize(k string) (string, error) {
	if len(k) < 4 {
		return "", &kegerr.InvalidKey{Key: k, Reason: "key shorter than 4 characters"}
	}
	return strings.ToLower(k), nil
}

// Valid reports whether k is a well-formed 32-character hex key.
func Valid(k string) bool {
	if len(k) != HexLen {
		return false
	}
	_, err := hex.DecodeString(k)
	return err == nil
}

// Part computes the partitioned path fragment for a key:
// part("abcd1234...") == "ab/cd/abcd1234...".
func Part(k string) (string, error) {
	norm, err := Normalize(k)
	if err != nil {
		return "", err
	}
	return norm[0:2] + "/" + norm[2:4] + "/" + norm, nil
}

// MustPart is like Part but panics on malformed input; only safe for
// keys already validated upstream (e.g. freshly computed by MD5Hex).
func MustPart(k string) string {
	p, err := Part(k)
	if err != nil {
		panic(err)
	}
	return p
}

// MD5Hex returns the lowercase hex MD5 digest of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// Bytes decodes a hex key into its raw 16 bytes.
func Bytes(k string) ([]byte, error) {
	norm, err := Normalize(k)
	if err != nil {
		return nil, err
	}
	b, err := hex.DecodeString(norm)
	if err != nil {
		return nil, &kegerr.InvalidKey{Key: k, Reason: err.Error()}
	}
	return b, nil
}

// FromBytes renders raw bytes as a lowercase hex key.
func FromBytes(b []byte) string {
	return hex.EncodeToString(b)
}

// VerifyMD5 checks that the MD5 of data equals the expected key, returning
// an IntegrityVerificationError tagged with objectName on mismatch.
func VerifyMD5(objectName string, data []byte, expected string) error {
	actual := MD5Hex(data)
	expectedNorm, err := Normalize(expected)
	if err != nil {
		return err
	}
	if actual != expectedNorm {
		return &kegerr.IntegrityVerificationError{
			ObjectName:     objectName,
			ExpectedDigest: expectedNorm,
			ActualDigest:   actual,
		}
	}
	return nil
}
