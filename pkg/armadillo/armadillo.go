// Package armadillo decrypts objects the CDN serves encrypted under the
// Armadillo scheme: Salsa20 keyed by a locally-held 16-byte key, with the
// nonce derived from the object's own encoding-key.
package armadillo

import (
	"encoding/binary"

	"golang.org/x/crypto/salsa20/salsa"

	"github.com/cuemby/keg/pkg/key"
	"github.com/cuemby/keg/pkg/kegerr"
)

// KeySize is the length of the raw Salsa20 key portion of an Armadillo
// key blob.
const KeySize = 16

// DigestSize is the length of the MD5-prefix checksum appended to the key.
const DigestSize = 4

// tau is the Salsa20 "expand 16-byte k" constant used when the key is 16
// bytes rather than 32 (golang.org/x/crypto/salsa20 only exposes the
// 256-bit-key constant at its top level, so the 128-bit variant Armadillo
// actually uses is built here directly on top of the package's exported
// Core permutation).
var tau = [16]byte{'e', 'x', 'p', 'a', 'n', 'd', ' ', '1', '6', '-', 'b', 'y', 't', 'e', ' ', 'k'}

// Key is a verified Armadillo decryption key.
type Key struct {
	expanded [32]byte // the 16-byte key duplicated into both halves, per the Salsa20 128-bit-key convention
}

// ParseKey verifies and wraps a key blob: KeySize raw key bytes followed
// by DigestSize bytes holding the first DigestSize bytes of MD5(key).
func ParseKey(data []byte) (*Key, error) {
	if len(data) != KeySize+DigestSize {
		return nil, &kegerr.InvalidConfig{Reason: "armadillo key blob has wrong size"}
	}
	raw := data[:KeySize]
	expectedDigest := key.FromBytes(data[KeySize:])
	actualDigest := key.MD5Hex(raw)[:DigestSize*2]
	if actualDigest != expectedDigest {
		return nil, &kegerr.IntegrityVerificationError{
			ObjectName:     "armadillo key",
			ExpectedDigest: expectedDigest,
			ActualDigest:   actualDigest,
		}
	}

	k := &Key{}
	copy(k.expanded[:16], raw)
	copy(k.expanded[16:], raw)
	return k, nil
}

// DecryptObject decrypts data that was encrypted for the object identified
// by ekey: the nonce is the last 8 bytes of the raw (unhex-decoded) key.
func (k *Key) DecryptObject(ekey string, data []byte) ([]byte, error) {
	raw, err := key.Bytes(ekey)
	if err != nil {
		return nil, err
	}
	if len(raw) < 8 {
		return nil, &kegerr.InvalidKey{Key: ekey, Reason: "key too short to derive an 8-byte nonce"}
	}
	nonce := raw[len(raw)-8:]

	out := make([]byte, len(data))
	salsaXOR(out, data, nonce, &k.expanded)
	return out, nil
}

// salsaXOR generates a Salsa20 keystream from an 8-byte nonce and a
// little-endian 64-bit block counter, XORing it against in.
func salsaXOR(out, in []byte, nonce []byte, key *[32]byte) {
	var block [16]byte
	copy(block[:8], nonce)

	var counter uint64
	var keyStream [64]byte
	for i := 0; i < len(in); i += 64 {
		binary.LittleEndian.PutUint64(block[8:], counter)
		salsa.Core(&keyStream, &block, key, &tau)

		end := i + 64
		if end > len(in) {
			end = len(in)
		}
		for j := i; j < end; j++ {
			out[j] = in[j] ^ keyStream[j-i]
		}
		counter++
	}
}
