// Package espec parses the "espec" mini-grammar used to describe how a
// BLTE payload is split into blocks and encoded: a flag
// character ('n', 'z', 'e', 'b') followed by flag-specific arguments,
// recursively for block-table sub-chunks.
//
// The grammar is small enough, and specific enough to this wire format,
// to hand-write a recursive-descent parser rather than reach for a
// general parser-combinator library: there is exactly one production per
// flag and no ambiguity requiring backtracking.
package espec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/keg/pkg/kegerr"
)

// Spec is one node of a parsed espec AST. Every implementation can
// re-render itself to the original textual form, so a decoded-then-
// re-encoded BLTE container can reuse the same espec string.
type Spec interface {
	String() string
}

// Raw is the 'n' flag: store the payload unmodified.
type Raw struct{}

func (Raw) String() string { return "n" }

// Zip is the 'z' flag: deflate the payload at Level with window Bits (0
// means the MPQ "raw deflate" variant).
type Zip struct {
	Level int
	Bits  int
}

const (
	DefaultZipLevel = 9
	DefaultZipBits  = 15
)

func (z Zip) String() string {
	if z.Level == DefaultZipLevel && z.Bits == DefaultZipBits {
		return "z"
	}
	if z.Bits == DefaultZipBits {
		return fmt.Sprintf("z:%d", z.Level)
	}
	bits := "mpq"
	if z.Bits != 0 {
		bits = strconv.Itoa(z.Bits)
	}
	return fmt.Sprintf("z:{%d,%s}", z.Level, bits)
}

// Encrypted is the 'e' flag: Salsa20-encrypt the sub-spec's output under
// Key (hex) with the given IV (hex).
type Encrypted struct {
	Key string
	IV  string
	Sub Spec
}

func (e Encrypted) String() string {
	return fmt.Sprintf("e:{%s,%s,%s}", e.Key, e.IV, e.Sub.String())
}

// BlockSpec is one sub-chunk within a block-table spec: either a fixed
// size (optionally repeated Count times) or a trailing "*" catch-all that
// consumes whatever remains.
type BlockSpec struct {
	Star  bool
	Size  int64
	Unit  byte // 0, 'K', or 'M'
	Count int  // 0 means unrepeated; -1 means repeated until the payload is exhausted
	Sub   Spec
}

func (b BlockSpec) sizeText() string {
	if b.Star {
		return "*"
	}
	text := strconv.FormatInt(b.Size, 10)
	if b.Unit != 0 {
		text += string(b.Unit)
	}
	if b.Count > 0 {
		text += fmt.Sprintf("*%d", b.Count)
	} else if b.Count < 0 {
		text += "*"
	}
	return text
}

func (b BlockSpec) String() string {
	return fmt.Sprintf("%s=%s", b.sizeText(), b.Sub.String())
}

// BlockTable is the 'b' flag: split the payload into one or more
// sub-chunks, each independently encoded.
type BlockTable struct {
	Blocks []BlockSpec
}

func (bt BlockTable) String() string {
	if len(bt.Blocks) == 1 && !bt.Blocks[0].Star {
		// A single non-star sub-chunk renders without surrounding braces,
		// matching the grammar's block_args = block_subchunk alternative.
		return "b:" + bt.Blocks[0].String()
	}
	parts := make([]string, len(bt.Blocks))
	for i, b := range bt.Blocks {
		parts[i] = b.String()
	}
	return "b:{" + strings.Join(parts, ",") + "}"
}

// parser walks a byte cursor over the spec text.
type parser struct {
	s   string
	pos int
}

// Parse parses a textual espec into its AST.
func Parse(spec string) (Spec, error) {
	p := &parser{s: spec}
	sp, err := p.parseSpec()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, &kegerr.InvalidConfig{Reason: fmt.Sprintf("espec: trailing input at offset %d in %q", p.pos, spec)}
	}
	return sp, nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return &kegerr.InvalidConfig{Reason: fmt.Sprintf("espec: "+format+" (in %q at offset %d)", append(args, p.s, p.pos)...)}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errf("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseSpec() (Spec, error) {
	switch p.peek() {
	case 'n':
		p.pos++
		return Raw{}, nil
	case 'z':
		p.pos++
		return p.parseZipArgs()
	case 'e':
		p.pos++
		return p.parseEncryptedArgs()
	case 'b':
		p.pos++
		return p.parseBlockArgs()
	default:
		return nil, p.errf("unknown espec flag %q", p.peek())
	}
}

func (p *parser) parseNumber() (int64, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] >= '0' && p.s[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, p.errf("expected number")
	}
	n, err := strconv.ParseInt(p.s[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errf("malformed number %q", p.s[start:p.pos])
	}
	return n, nil
}

func (p *parser) parseHex() (string, error) {
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= '0' && c <= '9') || (c >= 'A' && c <= 'F') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", p.errf("expected hex digits")
	}
	return p.s[start:p.pos], nil
}

func (p *parser) parseZipArgs() (Spec, error) {
	if p.peek() != ':' {
		return Zip{Level: DefaultZipLevel, Bits: DefaultZipBits}, nil
	}
	p.pos++
	if p.peek() == '{' {
		p.pos++
		level, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		if err := p.expect(','); err != nil {
			return nil, err
		}
		bits := DefaultZipBits
		if strings.HasPrefix(p.s[p.pos:], "mpq") {
			p.pos += 3
			bits = 0
		} else {
			n, err := p.parseNumber()
			if err != nil {
				return nil, err
			}
			bits = int(n)
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return Zip{Level: int(level), Bits: bits}, nil
	}
	level, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	return Zip{Level: int(level), Bits: DefaultZipBits}, nil
}

func (p *parser) parseEncryptedArgs() (Spec, error) {
	if err := p.expect(':'); err != nil {
		return nil, err
	}
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	keyHex, err := p.parseHex()
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}
	ivHex, err := p.parseHex()
	if err != nil {
		return nil, err
	}
	if err := p.expect(','); err != nil {
		return nil, err
	}
	sub, err := p.parseSpec()
	if err != nil {
		return nil, err
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}
	return Encrypted{Key: keyHex, IV: ivHex, Sub: sub}, nil
}

func (p *parser) parseBlockArgs() (Spec, error) {
	if err := p.expect(':'); err != nil {
		return nil, err
	}
	if p.peek() == '{' {
		p.pos++
		var blocks []BlockSpec
		for {
			b, err := p.parseBlockSubchunk()
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, b)
			if p.peek() == ',' {
				p.pos++
				continue
			}
			break
		}
		if err := p.expect('}'); err != nil {
			return nil, err
		}
		return BlockTable{Blocks: blocks}, nil
	}
	b, err := p.parseBlockSubchunk()
	if err != nil {
		return nil, err
	}
	return BlockTable{Blocks: []BlockSpec{b}}, nil
}

func (p *parser) parseBlockSubchunk() (BlockSpec, error) {
	var b BlockSpec
	if p.peek() == '*' {
		p.pos++
		b.Star = true
	} else {
		size, err := p.parseNumber()
		if err != nil {
			return BlockSpec{}, err
		}
		b.Size = size
		switch p.peek() {
		case 'K', 'M':
			b.Unit = p.peek()
			p.pos++
		}
		if p.peek() == '*' {
			p.pos++
			b.Count = -1
			if p.peek() >= '0' && p.peek() <= '9' {
				n, err := p.parseNumber()
				if err != nil {
					return BlockSpec{}, err
				}
				b.Count = int(n)
			}
		}
	}
	if err := p.expect('='); err != nil {
		return BlockSpec{}, err
	}
	sub, err := p.parseSpec()
	if err != nil {
		return BlockSpec{}, err
	}
	b.Sub = sub
	return b, nil
}
