package protocol

import (
	"errors"
	"fmt"
	"io"
)

// MaxVarIntLen is the longest encoding of a 32-bit varint.
const MaxVarIntLen = 5

// AppendVarInt appends the minimal base-128 little-endian encoding of v to b.
func AppendVarInt(b []byte, v uint32) []byte {
	for v >= 0x80 {
		b = append(b, byte(v)|0x80)
		v >>= 7
	}

	return append(b, byte(v))
}

// VarIntLen returns the number of bytes AppendVarInt produces for v.
func VarIntLen(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}

	return n
}

// ReadVarInt decodes one varint from r.
// It returns io.EOF only when r is exhausted before the first byte; a stream that ends
// mid-value or a value longer than MaxVarIntLen bytes fails with ErrMalformedFrame.
func ReadVarInt(r io.ByteReader) (uint32, error) {
	var v uint32
	for i := range MaxVarIntLen {
		b, err := r.ReadByte()
		if err != nil {
			if i == 0 {
				return 0, err
			}
			if errors.Is(err, io.EOF) {
				return 0, wrap(ErrMalformedFrame, io.ErrUnexpectedEOF)
			}
			return 0, err
		}

		if i == MaxVarIntLen-1 && b&0xf0 != 0 {
			return 0, fmt.Errorf("%w: varint overflows 32 bits", ErrMalformedFrame)
		}

		v |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return v, nil
		}
	}

	return 0, fmt.Errorf("%w: varint longer than %d bytes", ErrMalformedFrame, MaxVarIntLen)
}
