package keys

// Range represents all keys such that
//   k >= Min and k < Max
// If Min = nil that indicates the start of all keys
// If Max = nil that indicates the end of all keys
type Range struct {
	Min Key
	Max Key
}

// All returns a new key range matching all keys
func All() Range {
	return Range{}
}

// Contains returns true if key lies within the range
func (r Range) Contains(key Key) bool {
	if r.Min != nil && Compare(key, r.Min) < 0 {
		return false
	}

	if r.Max != nil && Compare(key, r.Max) >= 0 {
		return false
	}

	return true
}

// Gte confines the range to keys that are
// greater than or equal to k
func (r Range) Gte(k Key) Range {
	if r.Min != nil && Compare(k, r.Min) <= 0 {
		return r
	}

	r.Min = k

	return r
}

// Gt confines the range to keys that are
// greater than k
func (r Range) Gt(k Key) Range {
	return r.Gte(Next(k))
}

// Lt confines the range to keys that are
// less than k
func (r Range) Lt(k Key) Range {
	if k == nil {
		return r
	}

	if r.Max != nil && Compare(k, r.Max) >= 0 {
		return r
	}

	r.Max = k

	return r
}

// Prefix confines the range to keys that
// have the prefix k
func (r Range) Prefix(k Key) Range {
	return r.Gte(k).Lt(Inc(k))
}
