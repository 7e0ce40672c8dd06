package encoding_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/cfstore/keys/encoding"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestOrdering(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("int64 ascending preserves order", prop.ForAll(
		func(a, b int64) bool {
			return sign(bytes.Compare(encoding.EncodeInt64(nil, a, encoding.Ascending), encoding.EncodeInt64(nil, b, encoding.Ascending))) == compareInt64(a, b)
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("int64 descending inverts order", prop.ForAll(
		func(a, b int64) bool {
			return sign(bytes.Compare(encoding.EncodeInt64(nil, a, encoding.Descending), encoding.EncodeInt64(nil, b, encoding.Descending))) == -compareInt64(a, b)
		},
		gen.Int64(), gen.Int64(),
	))

	properties.Property("strings ascending preserve order", prop.ForAll(
		func(a, b string) bool {
			return sign(bytes.Compare(encoding.EncodeBytes(nil, []byte(a), encoding.Ascending), encoding.EncodeBytes(nil, []byte(b), encoding.Ascending))) == sign(bytes.Compare([]byte(a), []byte(b)))
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.Property("strings descending invert order", prop.ForAll(
		func(a, b string) bool {
			return sign(bytes.Compare(encoding.EncodeBytes(nil, []byte(a), encoding.Descending), encoding.EncodeBytes(nil, []byte(b), encoding.Descending))) == -sign(bytes.Compare([]byte(a), []byte(b)))
		},
		gen.AnyString(), gen.AnyString(),
	))

	properties.Property("composite keys order by first field then second", prop.ForAll(
		func(a1 string, a2 int64, b1 string, b2 int64) bool {
			a := encoding.EncodeInt64(encoding.EncodeBytes(nil, []byte(a1), encoding.Ascending), a2, encoding.Ascending)
			b := encoding.EncodeInt64(encoding.EncodeBytes(nil, []byte(b1), encoding.Ascending), b2, encoding.Ascending)
			expected := sign(bytes.Compare([]byte(a1), []byte(b1)))

			if expected == 0 {
				expected = compareInt64(a2, b2)
			}

			return sign(bytes.Compare(a, b)) == expected
		},
		gen.AnyString(), gen.Int64(), gen.AnyString(), gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestRoundTrip(t *testing.T) {
	testCases := map[string]struct {
		value     []byte
		direction encoding.Direction
	}{
		"empty":            {value: []byte{}, direction: encoding.Ascending},
		"zero bytes":       {value: []byte{0, 0, 1, 0}, direction: encoding.Ascending},
		"zero bytes desc":  {value: []byte{0, 0xff, 1, 0}, direction: encoding.Descending},
		"plain text desc":  {value: []byte("hello"), direction: encoding.Descending},
		"plain text asc":   {value: []byte("hello"), direction: encoding.Ascending},
		"trailing 0xff":    {value: []byte{'a', 0xff}, direction: encoding.Ascending},
		"trailing 0x00 ds": {value: []byte{'a', 0x00}, direction: encoding.Descending},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			encoded := encoding.EncodeBytes([]byte("prefix"), testCase.value, testCase.direction)
			rest, decoded, err := encoding.DecodeBytes(append(encoded[len("prefix"):], 'x'), testCase.direction)

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			if diff := cmp.Diff(string(testCase.value), string(decoded)); diff != "" {
				t.Fatalf(diff)
			}

			if diff := cmp.Diff("x", string(rest)); diff != "" {
				t.Fatalf(diff)
			}
		})
	}

	rest, v, err := encoding.DecodeInt64(encoding.EncodeInt64(nil, -42, encoding.Descending), encoding.Descending)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if v != -42 || len(rest) != 0 {
		t.Fatalf("expected -42 and no remainder, got %d and %#v", v, rest)
	}
}

func TestEncode(t *testing.T) {
	now := time.Now()

	for _, value := range []interface{}{"a", []byte("a"), true, 1, int8(1), int16(1), int32(1), int64(1), uint(1), uint8(1), uint16(1), uint32(1), uint64(1), now} {
		if _, err := encoding.Encode(nil, value, encoding.Ascending); err != nil {
			t.Fatalf("expected err to be nil for %T, got %#v", value, err)
		}
	}

	if _, err := encoding.Encode(nil, 1.5, encoding.Ascending); !errors.Is(err, encoding.ErrUnsupportedType) {
		t.Fatalf("expected err to be %#v, got %#v", encoding.ErrUnsupportedType, err)
	}
}

func TestIsAbsent(t *testing.T) {
	testCases := map[string]struct {
		value  interface{}
		absent bool
	}{
		"nil":          {value: nil, absent: true},
		"empty string": {value: "", absent: true},
		"empty bytes":  {value: []byte{}, absent: true},
		"zero int":     {value: 0, absent: false},
		"false":        {value: false, absent: false},
		"string":       {value: "a", absent: false},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if encoding.IsAbsent(testCase.value) != testCase.absent {
				t.Fatalf("expected IsAbsent(%#v) to be %v", testCase.value, testCase.absent)
			}
		})
	}
}

func compareInt64(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}

	return 0
}

func sign(i int) int {
	if i < 0 {
		return -1
	} else if i > 0 {
		return 1
	}

	return 0
}
