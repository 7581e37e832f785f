// tlv.go - NDN-style Type-Length-Value encoding.
//
// The distributor's key-record and membership-request publications use
// the wire format fixed by spec §6.2, which is byte-for-byte the NDN
// TLV scheme described in the NDN Packet Format Specification 0.3:
// a type and a length are each encoded as 1 byte if < 253, or as the
// marker byte 253 followed by a 2-byte big-endian value otherwise.
// Numeric values use NDN's nonNegativeInteger: the smallest of 1, 2, 4
// or 8 bytes that holds the value, big-endian.
//
// Grounded on original_source/include/dct/schema/tlv.hpp (the TLV tag
// catalog and varNum construction rules) and, for the manual
// encoding/binary byte-packing style, on the teacher's
// core/wire/commands package.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated indicates the input ended before a complete TLV block
// could be parsed.
var ErrTruncated = errors.New("tlv: truncated block")

// ErrBadType indicates the parsed type didn't match what the caller
// expected.
var ErrBadType = errors.New("tlv: unexpected type")

const longMarker = 253

// AppendVarNum appends NDN's varNum encoding of n (used for both the
// Type and Length fields of a TLV block) to buf.
func AppendVarNum(buf []byte, n uint64) []byte {
	if n < longMarker {
		return append(buf, byte(n))
	}
	if n > 0xFFFF {
		// Not used by this wire format (tags and content lengths all
		// fit in 16 bits) but handled for completeness.
		buf = append(buf, 254)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(n))
		return append(buf, b[:]...)
	}
	buf = append(buf, longMarker)
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(n))
	return append(buf, b[:]...)
}

// readVarNum parses a varNum at the front of buf, returning its value
// and the number of bytes consumed.
func readVarNum(buf []byte) (uint64, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrTruncated
	}
	switch buf[0] {
	case longMarker:
		if len(buf) < 3 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.BigEndian.Uint16(buf[1:3])), 3, nil
	case 254:
		if len(buf) < 5 {
			return 0, 0, ErrTruncated
		}
		return uint64(binary.BigEndian.Uint32(buf[1:5])), 5, nil
	default:
		return uint64(buf[0]), 1, nil
	}
}

// AppendBlock appends a complete T-L-V block of the given type wrapping
// value to buf.
func AppendBlock(buf []byte, typ uint16, value []byte) []byte {
	buf = AppendVarNum(buf, uint64(typ))
	buf = AppendVarNum(buf, uint64(len(value)))
	return append(buf, value...)
}

// AppendNumber appends a T-L-V block of the given type whose value is
// n encoded as NDN's nonNegativeInteger (smallest of 1/2/4/8 bytes).
func AppendNumber(buf []byte, typ uint16, n uint64) []byte {
	return AppendBlock(buf, typ, encodeNonNegativeInteger(n))
}

func encodeNonNegativeInteger(n uint64) []byte {
	switch {
	case n <= 0xFF:
		return []byte{byte(n)}
	case n <= 0xFFFF:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(n))
		return b
	case n <= 0xFFFFFFFF:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(n))
		return b
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, n)
		return b
	}
}

func decodeNonNegativeInteger(b []byte) (uint64, error) {
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(binary.BigEndian.Uint16(b)), nil
	case 4:
		return uint64(binary.BigEndian.Uint32(b)), nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("tlv: bad nonNegativeInteger length %d", len(b))
	}
}

// Block is one parsed T-L-V block; Value is a subslice of the original
// input, not a copy.
type Block struct {
	Type  uint16
	Value []byte
}

// Number decodes Value as an NDN nonNegativeInteger.
func (b Block) Number() (uint64, error) {
	return decodeNonNegativeInteger(b.Value)
}

// Parser walks a sequence of TLV blocks.
type Parser struct {
	buf []byte
}

// NewParser returns a Parser over buf.
func NewParser(buf []byte) *Parser { return &Parser{buf: buf} }

// Empty reports whether the parser has consumed the entire input.
func (p *Parser) Empty() bool { return len(p.buf) == 0 }

// Next parses and returns the next block in the stream.
func (p *Parser) Next() (Block, error) {
	typ, n, err := readVarNum(p.buf)
	if err != nil {
		return Block{}, err
	}
	rest := p.buf[n:]
	length, m, err := readVarNum(rest)
	if err != nil {
		return Block{}, err
	}
	rest = rest[m:]
	if uint64(len(rest)) < length {
		return Block{}, ErrTruncated
	}
	val := rest[:length]
	p.buf = rest[length:]
	return Block{Type: uint16(typ), Value: val}, nil
}

// NextOfType parses the next block and requires it to have the given
// type, matching the strict in-order TLV parsing dist_sgkey.hpp uses
// (content.nextBlk(36), then nextBlk(150), then nextBlk(130)).
func (p *Parser) NextOfType(typ uint16) (Block, error) {
	b, err := p.Next()
	if err != nil {
		return Block{}, err
	}
	if b.Type != typ {
		return Block{}, fmt.Errorf("%w: want %d got %d", ErrBadType, typ, b.Type)
	}
	return b, nil
}
