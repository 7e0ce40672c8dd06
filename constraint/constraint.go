// Package constraint builds the byte ranges that scope range scans
// over composite row keys.
//
// A row key is the concatenation of the encodings of its key fields,
// ordered from the lowest cardinality field to the highest. A scan
// fixes the values of a leading run of fields and optionally bounds
// the next one (the searched field) with a start and/or end value.
package constraint

import (
	"errors"
	"fmt"

	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/keys/encoding"
)

var (
	// ErrInvalidRangeSpec is returned when a range specification
	// cannot be turned into a constraint
	ErrInvalidRangeSpec = errors.New("invalid range specification")
)

// Constraint is an inclusive [Start, End] key range. A nil Start
// means the range is unbounded below and a nil End means it is
// unbounded above. A row key k lies within the range if
// k >= Start and either k <= End or k has End as a prefix.
// Constraints must not be modified once built.
type Constraint struct {
	Start keys.Key
	End   keys.Key
}

// New returns a constraint with the given bounds. Either bound may
// be nil.
func New(start, end keys.Key) Constraint {
	return Constraint{Start: start, End: end}
}

// Stop returns the exclusive upper bound of the physical scan that
// covers this constraint. It is the smallest key greater than every
// key having End as a prefix. Stop returns nil if the scan must run
// to the end of the keyspace.
func (c Constraint) Stop() keys.Key {
	if c.End == nil {
		return nil
	}

	return keys.Inc(c.End)
}

// Range returns the half-open key range scanned for this constraint
func (c Constraint) Range() keys.Range {
	return keys.All().Gte(c.Start).Lt(c.Stop())
}

// Contains returns true if key lies within the constraint
func (c Constraint) Contains(key keys.Key) bool {
	return c.Range().Contains(key)
}

// From returns a copy of the constraint whose lower bound is start.
// The upper bound is unchanged.
func (c Constraint) From(start keys.Key) Constraint {
	return Constraint{Start: start, End: c.End}
}

// String implements fmt.Stringer
func (c Constraint) String() string {
	return fmt.Sprintf("[%q, %q]", []byte(c.Start), []byte(c.End))
}

// Field describes one key field. Fields of a row key are listed from
// lowest to highest cardinality.
type Field struct {
	Name string
	// Reverted fields sort in descending logical order
	Reverted bool
}

func (field Field) direction() encoding.Direction {
	if field.Reverted {
		return encoding.Descending
	}

	return encoding.Ascending
}

// Spec describes a range over composite row keys
type Spec struct {
	// Fields lists every key field from lowest to highest cardinality
	Fields []Field
	// Fixed maps field names to the values they are fixed to
	Fixed map[string]interface{}
	// Searched names the field bounded by Start and End. It may be
	// empty if the range is scoped only by fixed values.
	Searched string
	// Start is the inclusive lower bound for the searched field
	Start interface{}
	// End is the inclusive upper bound for the searched field
	End interface{}
	// CheckCardinality requires that exactly the fields ranked below
	// Searched are fixed
	CheckCardinality bool
}

// Build encodes a range specification into a constraint
func Build(spec Spec) (Constraint, error) {
	searched := -1
	byName := make(map[string]Field, len(spec.Fields))

	for i, field := range spec.Fields {
		byName[field.Name] = field

		if field.Name == spec.Searched {
			searched = i
		}
	}

	if spec.Searched != "" && searched < 0 {
		return Constraint{}, fmt.Errorf("unknown searched field %q: %w", spec.Searched, ErrInvalidRangeSpec)
	}

	if searched < 0 {
		searched = len(spec.Fields)
	}

	if spec.CheckCardinality {
		if err := checkCardinality(spec, searched, byName); err != nil {
			return Constraint{}, err
		}
	}

	var prefix keys.Key

	gap := ""

	for _, field := range spec.Fields[:searched] {
		value, ok := spec.Fixed[field.Name]

		if !ok || encoding.IsAbsent(value) {
			if gap == "" {
				gap = field.Name
			}

			continue
		}

		if gap != "" {
			return Constraint{}, fmt.Errorf("field %q is fixed but %q before it is not: %w", field.Name, gap, ErrInvalidRangeSpec)
		}

		encoded, err := encoding.Encode(prefix, value, field.direction())

		if err != nil {
			return Constraint{}, fmt.Errorf("could not encode value of %q: %s: %w", field.Name, err.Error(), ErrInvalidRangeSpec)
		}

		prefix = encoded
	}

	if gap != "" && (!encoding.IsAbsent(spec.Start) || !encoding.IsAbsent(spec.End)) {
		return Constraint{}, fmt.Errorf("field %q is bounded but %q before it is not fixed: %w", spec.Searched, gap, ErrInvalidRangeSpec)
	}

	var direction encoding.Direction
	reverted := false

	if searched < len(spec.Fields) {
		direction = spec.Fields[searched].direction()
		reverted = spec.Fields[searched].Reverted
	}

	start, err := bound(prefix, spec.Start, direction)

	if err != nil {
		return Constraint{}, err
	}

	end, err := bound(prefix, spec.End, direction)

	if err != nil {
		return Constraint{}, err
	}

	if start == nil && end == nil {
		return Constraint{}, fmt.Errorf("neither a start nor an end could be derived: %w", ErrInvalidRangeSpec)
	}

	// A reverted field may be bounded in logical order, which is the
	// reverse of scan order
	if !encoding.IsAbsent(spec.Start) && !encoding.IsAbsent(spec.End) && keys.Compare(start, end) > 0 {
		if !reverted {
			return Constraint{}, fmt.Errorf("start of %q is after its end: %w", spec.Searched, ErrInvalidRangeSpec)
		}

		start, end = end, start
	}

	return Constraint{Start: start, End: end}, nil
}

func checkCardinality(spec Spec, searched int, byName map[string]Field) error {
	for _, field := range spec.Fields[:searched] {
		if value, ok := spec.Fixed[field.Name]; !ok || encoding.IsAbsent(value) {
			return fmt.Errorf("field %q has a lower cardinality than %q and must be fixed: %w", field.Name, spec.Searched, ErrInvalidRangeSpec)
		}
	}

	for name, value := range spec.Fixed {
		if encoding.IsAbsent(value) {
			continue
		}

		field, ok := byName[name]

		if !ok {
			return fmt.Errorf("unknown fixed field %q: %w", name, ErrInvalidRangeSpec)
		}

		for _, f := range spec.Fields[searched:] {
			if f.Name == field.Name {
				return fmt.Errorf("field %q does not have a lower cardinality than %q: %w", name, spec.Searched, ErrInvalidRangeSpec)
			}
		}
	}

	return nil
}

func bound(prefix keys.Key, value interface{}, direction encoding.Direction) (keys.Key, error) {
	if encoding.IsAbsent(value) {
		if len(prefix) == 0 {
			return nil, nil
		}

		return prefix, nil
	}

	b := make(keys.Key, len(prefix))

	copy(b, prefix)

	b, err := encoding.Encode(b, value, direction)

	if err != nil {
		return nil, fmt.Errorf("could not encode bound: %s: %w", err.Error(), ErrInvalidRangeSpec)
	}

	return b, nil
}
