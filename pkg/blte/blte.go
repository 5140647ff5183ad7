// Package blte implements the BLTE encoded-block-container codec: header
// and block-table parsing, per-block integrity verification, and decoding
// of the 'N' (raw) and 'Z' (zlib) block types.
package blte

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cuemby/keg/pkg/espec"
	"github.com/cuemby/keg/pkg/kegerr"
	"github.com/cuemby/keg/pkg/key"
)

const magic = "BLTE"

// blockEntry is one row of the block table: encoded size, decoded size,
// and the MD5 of the encoded block body.
type blockEntry struct {
	encodedSize int32
	decodedSize int32
	md5         string
}

// Decoder parses a BLTE container and exposes its decoded blocks as a
// single-shot pull iterator: once
// consumption has begun, a second full iteration via CollectAll fails with
// ErrStreamAlreadyConsumed rather than silently re-reading.
type Decoder struct {
	r      io.Reader
	ekey   string
	verify bool

	headerBytes []byte
	blocks      []blockEntry
	singleFrame bool

	nextBlock int
	started   bool
	exhausted bool
}

// NewDecoder parses the BLTE header (and block table, if present) from r
// and returns a ready-to-iterate Decoder. Header-size 0 means a
// single-frame container whose body is one typed block extending to EOF.
func NewDecoder(r io.Reader, ekey string, verify bool) (*Decoder, error) {
	norm, err := key.Normalize(ekey)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, &kegerr.BLTEError{Reason: "short read of BLTE header: " + err.Error()}
	}
	if string(header[0:4]) != magic {
		return nil, &kegerr.BLTEError{Reason: fmt.Sprintf("bad magic %q", header[0:4])}
	}
	headerSize := int32(binary.BigEndian.Uint32(header[4:8]))

	d := &Decoder{r: r, ekey: norm, verify: verify, headerBytes: header}

	if headerSize == 0 {
		d.singleFrame = true
		return d, nil
	}
	if headerSize < 9 {
		return nil, &kegerr.BLTEError{Reason: "header size smaller than minimum"}
	}

	rest := make([]byte, headerSize-8)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, &kegerr.BLTEError{Reason: "short read of BLTE block table: " + err.Error()}
	}
	if rest[0] != 0x0f {
		return nil, &kegerr.BLTEError{Reason: fmt.Sprintf("unsupported BLTE version byte 0x%02x", rest[0])}
	}

	if verify {
		full := append(append([]byte{}, header...), rest...)
		if err := key.VerifyMD5("BLTE header", full, norm); err != nil {
			return nil, err
		}
	}

	blockInfo := rest[1:]
	if len(blockInfo) < 3 {
		return nil, &kegerr.BLTEError{Reason: "truncated block count"}
	}
	numBlocks := int(blockInfo[0])<<16 | int(blockInfo[1])<<8 | int(blockInfo[2])
	blockInfo = blockInfo[3:]

	const entrySize = 4 + 4 + 16
	if len(blockInfo) != numBlocks*entrySize {
		return nil, &kegerr.BLTEError{Reason: "block table size mismatch"}
	}

	d.blocks = make([]blockEntry, numBlocks)
	for i := 0; i < numBlocks; i++ {
		off := i * entrySize
		encSize := int32(binary.BigEndian.Uint32(blockInfo[off : off+4]))
		decSize := int32(binary.BigEndian.Uint32(blockInfo[off+4 : off+8]))
		md5 := key.FromBytes(blockInfo[off+8 : off+24])
		d.blocks[i] = blockEntry{encodedSize: encSize, decodedSize: decSize, md5: md5}
	}

	return d, nil
}

// Next returns the next decoded block, or io.EOF once the container is
// fully consumed. For a multi-frame container, trailing bytes left in the
// underlying reader after the last block fail with ErrTrailingBytes
// instead of a clean io.EOF.
func (d *Decoder) Next() ([]byte, error) {
	if d.exhausted {
		return nil, io.EOF
	}
	d.started = true

	if d.singleFrame {
		d.exhausted = true
		data, err := io.ReadAll(d.r)
		if err != nil {
			return nil, &kegerr.BLTEError{Reason: "reading single-frame body: " + err.Error()}
		}
		if d.verify {
			full := append(append([]byte{}, d.headerBytes...), data...)
			if err := key.VerifyMD5("single-frame BLTE", full, d.ekey); err != nil {
				return nil, err
			}
		}
		return decodeBlock(data)
	}

	if d.nextBlock >= len(d.blocks) {
		d.exhausted = true
		var probe [1]byte
		if n, _ := io.ReadFull(d.r, probe[:]); n > 0 {
			return nil, kegerr.ErrTrailingBytes
		}
		return nil, io.EOF
	}

	entry := d.blocks[d.nextBlock]
	d.nextBlock++
	raw := make([]byte, entry.encodedSize)
	if _, err := io.ReadFull(d.r, raw); err != nil {
		return nil, &kegerr.BLTEError{Reason: "short read of BLTE block body: " + err.Error()}
	}
	if d.verify {
		if err := key.VerifyMD5("BLTE block", raw, entry.md5); err != nil {
			return nil, err
		}
	}
	return decodeBlock(raw)
}

// CollectAll drains the decoder and concatenates every decoded block: the
// "load the whole file" convenience most callers want. Calling it after
// iteration has already begun via Next (including a prior call to
// CollectAll itself) fails with ErrStreamAlreadyConsumed.
func (d *Decoder) CollectAll() ([]byte, error) {
	if d.started {
		return nil, kegerr.ErrStreamAlreadyConsumed
	}
	var buf bytes.Buffer
	for {
		block, err := d.Next()
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
		buf.Write(block)
	}
}

func decodeBlock(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, &kegerr.BLTEError{Reason: "empty block body"}
	}
	switch data[0] {
	case 'N':
		return data[1:], nil
	case 'Z':
		zr, err := zlib.NewReader(bytes.NewReader(data[1:]))
		if err != nil {
			return nil, &kegerr.BLTEError{Reason: "zlib: " + err.Error()}
		}
		defer zr.Close()
		out, err := io.ReadAll(zr)
		if err != nil {
			return nil, &kegerr.BLTEError{Reason: "zlib: " + err.Error()}
		}
		return out, nil
	default:
		return nil, &kegerr.BLTEError{Reason: fmt.Sprintf("unknown block type %q", data[0])}
	}
}

// Decode parses and fully decodes a BLTE container from r in one call.
func Decode(r io.Reader, ekey string, verify bool) ([]byte, error) {
	dec, err := NewDecoder(r, ekey, verify)
	if err != nil {
		return nil, err
	}
	return dec.CollectAll()
}

// Encode builds a BLTE container from payload according to spec, the
// parsed espec AST describing how to split and compress it. Only Raw,
// Zip, and BlockTable nodes are supported; an Encrypted node has no local
// key material to encode against and is rejected.
func Encode(payload []byte, spec espec.Spec) ([]byte, error) {
	chunks, err := encodeChunks(payload, spec)
	if err != nil {
		return nil, err
	}

	if len(chunks) == 1 {
		var buf bytes.Buffer
		buf.WriteString(magic)
		binary.Write(&buf, binary.BigEndian, int32(0))
		buf.Write(chunks[0])
		return buf.Bytes(), nil
	}

	var blockInfo bytes.Buffer
	blockInfo.WriteByte(byte(len(chunks) >> 16))
	blockInfo.WriteByte(byte(len(chunks) >> 8))
	blockInfo.WriteByte(byte(len(chunks)))
	var bodies bytes.Buffer
	for _, c := range chunks {
		decoded, err := decodeBlock(c)
		if err != nil {
			return nil, err
		}
		binary.Write(&blockInfo, binary.BigEndian, int32(len(c)))
		binary.Write(&blockInfo, binary.BigEndian, int32(len(decoded)))
		sum := key.MD5Hex(c)
		sumBytes, _ := key.Bytes(sum)
		blockInfo.Write(sumBytes)
		bodies.Write(c)
	}

	headerSize := int32(8 + 1 + blockInfo.Len())
	var out bytes.Buffer
	out.WriteString(magic)
	binary.Write(&out, binary.BigEndian, headerSize)
	out.WriteByte(0x0f)
	out.Write(blockInfo.Bytes())
	out.Write(bodies.Bytes())
	return out.Bytes(), nil
}

// encodeChunks returns the fully encoded ('N'/'Z'-tagged) bytes of each
// block described by spec, applied against payload in order.
func encodeChunks(payload []byte, spec espec.Spec) ([][]byte, error) {
	switch s := spec.(type) {
	case espec.Raw:
		return [][]byte{append([]byte{'N'}, payload...)}, nil
	case espec.Zip:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, s.Level)
		if err != nil {
			return nil, &kegerr.BLTEError{Reason: "zlib: " + err.Error()}
		}
		if _, err := zw.Write(payload); err != nil {
			return nil, &kegerr.BLTEError{Reason: "zlib: " + err.Error()}
		}
		if err := zw.Close(); err != nil {
			return nil, &kegerr.BLTEError{Reason: "zlib: " + err.Error()}
		}
		return [][]byte{append([]byte{'Z'}, buf.Bytes()...)}, nil
	case espec.BlockTable:
		var chunks [][]byte
		offset := 0
		for i, block := range s.Blocks {
			var part []byte
			if block.Star {
				part = payload[offset:]
				offset = len(payload)
			} else {
				size := int(block.Size)
				switch block.Unit {
				case 'K':
					size *= 1024
				case 'M':
					size *= 1024 * 1024
				}
				count := block.Count
				if count == 0 {
					count = 1
				}
				for n := 0; n < count || (count < 0 && size > 0 && offset < len(payload)); n++ {
					end := min(offset+size, len(payload))
					sub, err := encodeChunks(payload[offset:end], block.Sub)
					if err != nil {
						return nil, err
					}
					chunks = append(chunks, sub...)
					offset = end
				}
				continue
			}
			sub, err := encodeChunks(part, block.Sub)
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, sub...)
			_ = i
		}
		if offset != len(payload) {
			return nil, &kegerr.BLTEError{Reason: "block table does not cover entire payload"}
		}
		return chunks, nil
	default:
		return nil, &kegerr.BLTEError{Reason: fmt.Sprintf("unsupported espec node for encode: %T", spec)}
	}
}

// Verify decodes r purely to check its integrity, discarding the decoded
// bytes; it is the Go equivalent of verify_blte_data.
func Verify(r io.Reader, ekey string) error {
	dec, err := NewDecoder(r, ekey, true)
	if err != nil {
		return err
	}
	for {
		_, err := dec.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
