package store

import (
	"encoding/binary"
	"fmt"
)

// EncodeCounter encodes a counter cell value
func EncodeCounter(v int64) []byte {
	b := make([]byte, 8)

	binary.BigEndian.PutUint64(b, uint64(v))

	return b
}

// DecodeCounter decodes a counter cell value. A nil value
// decodes to zero.
func DecodeCounter(b []byte) (int64, error) {
	if b == nil {
		return 0, nil
	}

	if len(b) != 8 {
		return 0, fmt.Errorf("counter cells must be 8 bytes long, got %d", len(b))
	}

	return int64(binary.BigEndian.Uint64(b)), nil
}
