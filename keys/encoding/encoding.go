// Package encoding turns key field values into byte strings whose
// lexicographic order matches the natural order of the values.
// Every encoding is prefix-free so encoded fields can be concatenated
// into composite row keys. Descending (reverted) encodings are the
// ones complement of the ascending encoding, so an ascending scan
// visits reverted fields in descending logical order.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const (
	escape      byte = 0x00
	escapedTerm byte = 0x01
	escaped00   byte = 0xff
)

var (
	// ErrUnsupportedType is returned when a value has no
	// sortable encoding
	ErrUnsupportedType = errors.New("value type has no sortable encoding")
	// ErrMalformed is returned when decoding a buffer that was
	// not produced by the matching encoder
	ErrMalformed = errors.New("malformed encoded value")
)

// Direction is the order in which encoded values sort
type Direction int

const (
	// Ascending encodings sort in natural value order
	Ascending Direction = iota
	// Descending encodings sort in reverse value order
	Descending
)

// Terminator returns the byte sequence that ends every encoded
// string or byte slice in direction d
func Terminator(d Direction) []byte {
	if d == Descending {
		return []byte{^escape, ^escapedTerm}
	}

	return []byte{escape, escapedTerm}
}

// EncodeBytes appends the escape-based encoding of data to b.
// 0x00 is escaped as 0x00 0xff and the value is terminated with
// 0x00 0x01, which cannot occur elsewhere in the encoded value.
func EncodeBytes(b []byte, data []byte, d Direction) []byte {
	n := len(b)

	for {
		i := bytes.IndexByte(data, escape)

		if i == -1 {
			break
		}

		b = append(b, data[:i]...)
		b = append(b, escape, escaped00)
		data = data[i+1:]
	}

	b = append(b, data...)
	b = append(b, escape, escapedTerm)

	if d == Descending {
		onesComplement(b[n:])
	}

	return b
}

// DecodeBytes decodes one value produced by EncodeBytes from the
// front of b. It returns the rest of b and the decoded value.
func DecodeBytes(b []byte, d Direction) ([]byte, []byte, error) {
	esc, term, esc00 := escape, escapedTerm, escaped00

	if d == Descending {
		esc, term, esc00 = ^esc, ^term, ^esc00
	}

	var r []byte

	for {
		i := bytes.IndexByte(b, esc)

		if i == -1 || i+1 >= len(b) {
			return nil, nil, fmt.Errorf("no terminator in %#x: %w", b, ErrMalformed)
		}

		r = append(r, b[:i]...)

		switch b[i+1] {
		case term:
			if d == Descending {
				onesComplement(r)
			}

			return b[i+2:], r, nil
		case esc00:
			r = append(r, esc)
		default:
			return nil, nil, fmt.Errorf("unknown escape sequence %#x %#x: %w", b[i], b[i+1], ErrMalformed)
		}

		b = b[i+2:]
	}
}

// EncodeUint64 appends the 8 byte big-endian representation
// of v to b
func EncodeUint64(b []byte, v uint64, d Direction) []byte {
	if d == Descending {
		v = ^v
	}

	var k [8]byte

	binary.BigEndian.PutUint64(k[:], v)

	return append(b, k[:]...)
}

// DecodeUint64 decodes a value produced by EncodeUint64
func DecodeUint64(b []byte, d Direction) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, fmt.Errorf("need 8 bytes, have %d: %w", len(b), ErrMalformed)
	}

	v := binary.BigEndian.Uint64(b[:8])

	if d == Descending {
		v = ^v
	}

	return b[8:], v, nil
}

// EncodeInt64 appends an order-preserving encoding of v to b.
// Flipping the sign bit moves negative numbers below positive
// ones in unsigned big-endian order.
func EncodeInt64(b []byte, v int64, d Direction) []byte {
	return EncodeUint64(b, uint64(v)^(1<<63), d)
}

// DecodeInt64 decodes a value produced by EncodeInt64
func DecodeInt64(b []byte, d Direction) ([]byte, int64, error) {
	b, u, err := DecodeUint64(b, d)

	if err != nil {
		return nil, 0, err
	}

	return b, int64(u ^ (1 << 63)), nil
}

// Encode appends the encoding of an arbitrary supported value to b
func Encode(b []byte, value interface{}, d Direction) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return EncodeBytes(b, []byte(v), d), nil
	case []byte:
		return EncodeBytes(b, v, d), nil
	case bool:
		var x uint64

		if v {
			x = 1
		}

		return EncodeUint64(b, x, d), nil
	case int:
		return EncodeInt64(b, int64(v), d), nil
	case int8:
		return EncodeInt64(b, int64(v), d), nil
	case int16:
		return EncodeInt64(b, int64(v), d), nil
	case int32:
		return EncodeInt64(b, int64(v), d), nil
	case int64:
		return EncodeInt64(b, v, d), nil
	case uint:
		return EncodeUint64(b, uint64(v), d), nil
	case uint8:
		return EncodeUint64(b, uint64(v), d), nil
	case uint16:
		return EncodeUint64(b, uint64(v), d), nil
	case uint32:
		return EncodeUint64(b, uint64(v), d), nil
	case uint64:
		return EncodeUint64(b, v, d), nil
	case time.Time:
		return EncodeInt64(b, v.UnixNano(), d), nil
	}

	return nil, fmt.Errorf("%T: %w", value, ErrUnsupportedType)
}

// IsAbsent returns true if value should be treated as
// not supplied: nil, an empty string or an empty byte slice
func IsAbsent(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}

	return false
}

func onesComplement(b []byte) {
	for i := range b {
		b[i] = ^b[i]
	}
}
