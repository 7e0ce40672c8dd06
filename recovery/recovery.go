// Package recovery sorts store faults into the categories the driver
// knows how to recover from
package recovery

import (
	"errors"

	"github.com/jrife/cfstore/store"
)

// Category is a class of store fault
type Category int

const (
	// Fatal faults are not retried
	Fatal Category = iota
	// TableMissing means the table does not exist any more
	TableMissing
	// FamilyMissing means a column family does not exist any more
	FamilyMissing
	// RegionDisabled means the table or part of it is not serving
	RegionDisabled
	// ConnectionLost means the connection to the store broke
	ConnectionLost
	// ScanExpired means the store forgot an open scanner
	ScanExpired
)

var categoryNames = map[Category]string{
	Fatal:          "fatal",
	TableMissing:   "tableMissing",
	FamilyMissing:  "familyMissing",
	RegionDisabled: "regionDisabled",
	ConnectionLost: "connectionLost",
	ScanExpired:    "scanExpired",
}

// String implements fmt.Stringer
func (category Category) String() string {
	if name, ok := categoryNames[category]; ok {
		return name
	}

	return "unknown"
}

// Categories lists every category that can be recovered from
func Categories() []Category {
	return []Category{TableMissing, FamilyMissing, RegionDisabled, ConnectionLost, ScanExpired}
}

// Recoverable returns true if the driver has a remedy for faults of
// this category
func (category Category) Recoverable() bool {
	return category != Fatal
}

// Restarts returns true if the remedy is a full restart of the
// connection
func (category Category) Restarts() bool {
	return category == ConnectionLost || category == ScanExpired
}

// Classify returns the category of err. nil is Fatal; callers only
// classify failures. Timeouts and errors from the lock service are
// Fatal.
func Classify(err error) Category {
	switch {
	case err == nil:
		return Fatal
	case errors.Is(err, store.ErrTableNotFound):
		return TableMissing
	case errors.Is(err, store.ErrFamilyNotFound):
		return FamilyMissing
	case errors.Is(err, store.ErrTableDisabled):
		return RegionDisabled
	case errors.Is(err, store.ErrConnectionLost):
		return ConnectionLost
	case errors.Is(err, store.ErrScannerExpired):
		return ScanExpired
	}

	return Fatal
}
