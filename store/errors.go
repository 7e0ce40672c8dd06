package store

import (
	"errors"
)

var (
	// ErrTableNotFound indicates that a table does not exist
	ErrTableNotFound = errors.New("table does not exist")
	// ErrTableExists indicates that a table could not be created
	// because it already exists
	ErrTableExists = errors.New("table already exists")
	// ErrFamilyNotFound indicates that an operation referenced a
	// column family that does not exist in the table
	ErrFamilyNotFound = errors.New("column family does not exist")
	// ErrFamilyExists indicates that a family could not be added
	// because it already exists
	ErrFamilyExists = errors.New("column family already exists")
	// ErrTableDisabled indicates that a table or one of its regions
	// is not serving requests
	ErrTableDisabled = errors.New("table is not serving")
	// ErrConnectionLost indicates that the connection or session to
	// the store failed. The connection must be rebuilt.
	ErrConnectionLost = errors.New("connection to store lost")
	// ErrScannerExpired indicates that the store no longer knows
	// the scanner, usually because its lease ran out
	ErrScannerExpired = errors.New("scanner expired")
	// ErrUnsupportedCompression indicates that the store does not
	// support a compression codec
	ErrUnsupportedCompression = errors.New("compression codec is not supported")
)
