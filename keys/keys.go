package keys

import (
	"bytes"
)

// Key is a single row key
type Key []byte

// Compare compares two keys
// -1 means a < b
// 1 means a > b
// 0 means a = b
func Compare(a, b Key) int {
	return bytes.Compare(a, b)
}

// Inc treats key as a big-endian unsigned integer
// and returns key + 1. The result is the smallest
// key greater than every key that has key as a prefix.
// key is not modified.
func Inc(key Key) Key {
	carry := true
	after := make(Key, len(key))

	copy(after, key)

	for i := len(after) - 1; i >= 0 && carry; i-- {
		if key[i] < 0xff {
			carry = false
		}

		after[i] = key[i] + 1
	}

	// carry will only be true if all elements of key
	// were equal to 0xff. The range should just go
	// all the way to the end of the real key range.
	if carry {
		return nil
	}

	return after
}

// Next returns the key directly after key such that
// there can exist no other key that comes between
// key and Next(key). key is not modified.
func Next(key Key) Key {
	after := make(Key, len(key)+1)

	copy(after, key)
	after[len(key)] = 0

	return after
}

// HasPrefix returns true if key starts with prefix
func HasPrefix(key, prefix Key) bool {
	return bytes.HasPrefix(key, prefix)
}
