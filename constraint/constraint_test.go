package constraint_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/keys/encoding"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var fields = []constraint.Field{
	{Name: "tenant"},
	{Name: "day", Reverted: true},
	{Name: "id"},
}

// rowKey encodes a complete row key the way the mapping layer does
func rowKey(tenant string, day int64, id string) keys.Key {
	k := encoding.EncodeBytes(nil, []byte(tenant), encoding.Ascending)
	k = encoding.EncodeInt64(k, day, encoding.Descending)

	return encoding.EncodeBytes(k, []byte(id), encoding.Ascending)
}

func TestBuild(t *testing.T) {
	testCases := map[string]struct {
		spec      constraint.Spec
		contains  []keys.Key
		excludes  []keys.Key
		expectErr error
	}{
		"prefix only": {
			spec: constraint.Spec{
				Fields: fields,
				Fixed:  map[string]interface{}{"tenant": "acme"},
			},
			contains: []keys.Key{rowKey("acme", 1, "a"), rowKey("acme", -5, "zzz")},
			excludes: []keys.Key{rowKey("acm", 1, "a"), rowKey("acme\x00", 1, "a"), rowKey("acmf", 1, "a"), rowKey("acme\xff", 1, "a")},
		},
		"searched with start and end": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme"},
				Searched: "day",
				Start:    int64(10),
				End:      int64(5),
			},
			contains: []keys.Key{rowKey("acme", 10, "a"), rowKey("acme", 7, "a"), rowKey("acme", 5, "zzz")},
			excludes: []keys.Key{rowKey("acme", 11, "a"), rowKey("acme", 4, "a"), rowKey("other", 7, "a")},
		},
		"searched with start only": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme", "day": int64(3)},
				Searched: "id",
				Start:    "m",
			},
			contains: []keys.Key{rowKey("acme", 3, "m"), rowKey("acme", 3, "zz")},
			excludes: []keys.Key{rowKey("acme", 3, "l"), rowKey("acme", 2, "z"), rowKey("acmf", 3, "a")},
		},
		"no prefix, end only": {
			spec: constraint.Spec{
				Fields:   fields,
				Searched: "tenant",
				End:      "b",
			},
			contains: []keys.Key{rowKey("a", 1, "a"), rowKey("b", 1, "a")},
			excludes: []keys.Key{rowKey("b\x00", 1, "a"), rowKey("c", 1, "a")},
		},
		"empty intermediate values are absent": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme"},
				Searched: "day",
				Start:    "",
				End:      nil,
			},
			contains: []keys.Key{rowKey("acme", 1, "a")},
			excludes: []keys.Key{rowKey("other", 1, "a")},
		},
		"ambiguous": {
			spec: constraint.Spec{
				Fields:   fields,
				Searched: "tenant",
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"missing lower cardinality value": {
			spec: constraint.Spec{
				Fields:           fields,
				Fixed:            map[string]interface{}{"tenant": "acme"},
				Searched:         "id",
				Start:            "a",
				CheckCardinality: true,
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"surplus value": {
			spec: constraint.Spec{
				Fields:           fields,
				Fixed:            map[string]interface{}{"tenant": "acme", "id": "x"},
				Searched:         "day",
				Start:            int64(1),
				CheckCardinality: true,
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"unknown fixed field": {
			spec: constraint.Spec{
				Fields:           fields,
				Fixed:            map[string]interface{}{"tenant": "acme", "color": "red"},
				Searched:         "day",
				Start:            int64(1),
				CheckCardinality: true,
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"unknown searched field": {
			spec: constraint.Spec{
				Fields:   fields,
				Searched: "color",
				Start:    "red",
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"unsupported value": {
			spec: constraint.Spec{
				Fields:   fields,
				Searched: "tenant",
				Start:    1.5,
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"reverted searched field bounded in logical order": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme"},
				Searched: "day",
				Start:    int64(10),
				End:      int64(20),
			},
			contains: []keys.Key{rowKey("acme", 10, "a"), rowKey("acme", 15, "a"), rowKey("acme", 20, "zzz")},
			excludes: []keys.Key{rowKey("acme", 9, "a"), rowKey("acme", 21, "a")},
		},
		"start after end": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme", "day": int64(3)},
				Searched: "id",
				Start:    "m",
				End:      "c",
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"gap before fixed value": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"day": int64(3)},
				Searched: "id",
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"gap before searched bound": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme"},
				Searched: "id",
				Start:    "a",
				End:      "k",
			},
			expectErr: constraint.ErrInvalidRangeSpec,
		},
		"gap without bounds keeps the prefix": {
			spec: constraint.Spec{
				Fields:   fields,
				Fixed:    map[string]interface{}{"tenant": "acme", "day": ""},
				Searched: "id",
			},
			contains: []keys.Key{rowKey("acme", 0, "a"), rowKey("acme", 6, "zzz")},
			excludes: []keys.Key{rowKey("other", 6, "a")},
		},
		"cardinality satisfied": {
			spec: constraint.Spec{
				Fields:           fields,
				Fixed:            map[string]interface{}{"tenant": "acme", "day": int64(2)},
				Searched:         "id",
				End:              "k",
				CheckCardinality: true,
			},
			contains: []keys.Key{rowKey("acme", 2, "a"), rowKey("acme", 2, "k")},
			excludes: []keys.Key{rowKey("acme", 2, "l"), rowKey("acme", 1, "a")},
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			c, err := constraint.Build(testCase.spec)

			if testCase.expectErr != nil {
				if !errors.Is(err, testCase.expectErr) {
					t.Fatalf("expected err to be %#v, got %#v", testCase.expectErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("expected err to be nil, got %#v", err)
			}

			for _, k := range testCase.contains {
				if !c.Contains(k) {
					t.Errorf("expected %s to contain %q", c, k)
				}
			}

			for _, k := range testCase.excludes {
				if c.Contains(k) {
					t.Errorf("expected %s to exclude %q", c, k)
				}
			}
		})
	}
}

func TestEndInclusive(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("end bound includes its value and excludes the successor", prop.ForAll(
		func(v int64) bool {
			if v == 1<<63-1 {
				return true
			}

			c, err := constraint.Build(constraint.Spec{
				Fields:   []constraint.Field{{Name: "n"}},
				Searched: "n",
				End:      v,
			})

			if err != nil {
				return false
			}

			exact := encoding.EncodeInt64(nil, v, encoding.Ascending)
			successor := encoding.EncodeInt64(nil, v+1, encoding.Ascending)

			return c.Contains(exact) && !c.Contains(successor)
		},
		gen.Int64(),
	))

	properties.Property("start keys follow value order", prop.ForAll(
		func(a, b string, reverted bool) bool {
			build := func(v string) keys.Key {
				c, err := constraint.Build(constraint.Spec{
					Fields:   []constraint.Field{{Name: "s", Reverted: reverted}},
					Searched: "s",
					Start:    v,
				})

				if err != nil {
					return nil
				}

				return c.Start
			}

			if a == "" || b == "" || a == b {
				return true
			}

			order := keys.Compare(build(a), build(b))

			if (a < b) != reverted {
				return order < 0
			}

			return order > 0
		},
		gen.AnyString(), gen.AnyString(), gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestStop(t *testing.T) {
	testCases := map[string]struct {
		c    constraint.Constraint
		stop keys.Key
	}{
		"unbounded": {
			c:    constraint.New(keys.Key("a"), nil),
			stop: nil,
		},
		"increment last byte": {
			c:    constraint.New(nil, keys.Key("ab\x00\x01")),
			stop: keys.Key("ab\x00\x02"),
		},
		"widen on overflow": {
			c:    constraint.New(nil, keys.Key{'a', 0xff}),
			stop: keys.Key{'b', 0x00},
		},
		"all 0xff runs to the end": {
			c:    constraint.New(nil, keys.Key{0xff, 0xff}),
			stop: nil,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(testCase.stop, testCase.c.Stop()); diff != "" {
				t.Fatalf(diff)
			}
		})
	}
}

func TestFrom(t *testing.T) {
	c := constraint.New(keys.Key("a"), keys.Key("m"))
	resumed := c.From(keys.Next(keys.Key("c")))

	if diff := cmp.Diff(constraint.New(keys.Key("c\x00"), keys.Key("m")), resumed); diff != "" {
		t.Fatalf(diff)
	}

	if diff := cmp.Diff(keys.Key("a"), c.Start); diff != "" {
		t.Fatalf("original constraint changed: %s", diff)
	}
}
