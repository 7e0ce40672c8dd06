package store

import (
	"context"

	"github.com/jrife/cfstore/keys"
)

// PluginOptions are backend specific options used to open
// a connection
type PluginOptions map[string]interface{}

// Plugin is a factory for connections to one kind of backing
// store
type Plugin interface {
	// Name returns the name of the storage plugin
	Name() string
	// Open opens a new connection to the store described by options
	Open(ctx context.Context, options PluginOptions) (Conn, error)
	// NewTempConn returns a connection to a fresh, empty store
	// initialized with some sane defaults. It is meant for tests
	// that need a store without knowing how to set one up.
	NewTempConn() (Conn, error)
}

// Conn is a connection to a backing store. It is safe for
// concurrent use. Once a Conn returns ErrConnectionLost it stays
// broken and must be replaced by a new connection.
type Conn interface {
	// Admin returns the schema administration interface
	Admin() Admin
	// Table returns a handle for a table. It does not check
	// that the table exists. It must not return nil.
	Table(name string) Table
	// Close closes the connection. Open scanners fail with
	// ErrConnectionLost afterwards.
	Close() error
}

// Admin manages tables and column families
type Admin interface {
	// DescribeTable returns the current descriptor of a table
	// or ErrTableNotFound.
	DescribeTable(ctx context.Context, name string) (TableDescriptor, error)
	// CreateTable creates an enabled table with the families in
	// desc. It returns ErrTableExists if the table exists.
	CreateTable(ctx context.Context, desc TableDescriptor) error
	// DeleteTable deletes a table and all its rows
	DeleteTable(ctx context.Context, name string) error
	// DisableTable stops a table from serving. It has no effect
	// if the table is already disabled.
	DisableTable(ctx context.Context, name string) error
	// EnableTable makes a table serve again. It has no effect
	// if the table is already enabled.
	EnableTable(ctx context.Context, name string) error
	// AddFamily adds a column family to a table. It returns
	// ErrFamilyExists if the family exists.
	AddFamily(ctx context.Context, table string, family FamilyDescriptor) error
	// ModifyFamily replaces the properties of an existing family.
	// The change may become visible through DescribeTable only
	// some time after ModifyFamily returns.
	ModifyFamily(ctx context.Context, table string, family FamilyDescriptor) error
	// Compressions lists the compression codecs this store supports
	Compressions() []string
}

// Row is one row. Families maps family -> qualifier -> value.
type Row struct {
	Key      keys.Key
	Families map[string]map[string][]byte
}

// Cell returns the value of one cell
func (row Row) Cell(family, qualifier string) ([]byte, bool) {
	columns, ok := row.Families[family]

	if !ok {
		return nil, false
	}

	value, ok := columns[qualifier]

	return value, ok
}

// Empty returns true if the row has no cells
func (row Row) Empty() bool {
	for _, columns := range row.Families {
		if len(columns) > 0 {
			return false
		}
	}

	return true
}

// Mutation describes the changes to apply to one row atomically.
// Changed maps family -> qualifier -> value.
// Removed maps family -> qualifiers to delete.
type Mutation struct {
	Changed map[string]map[string][]byte
	Removed map[string][]string
}

// Empty returns true if the mutation changes nothing
func (mutation Mutation) Empty() bool {
	for _, columns := range mutation.Changed {
		if len(columns) > 0 {
			return false
		}
	}

	for _, qualifiers := range mutation.Removed {
		if len(qualifiers) > 0 {
			return false
		}
	}

	return true
}

// ScanRequest describes a range scan
type ScanRequest struct {
	// Range is the half-open key range to scan
	Range keys.Range
	// Families restricts the scan to these families. Empty
	// means all families.
	Families []string
	// Limit is the maximum number of rows to return. Limit <= 0
	// means no limit.
	Limit int
	// KeysOnly scans row keys without cell values
	KeysOnly bool
}

// Table performs row operations on one table
type Table interface {
	// Name returns the name of the table
	Name() string
	// Get reads a row restricted to families. Empty families means
	// all families. ok is false if the row has no cells in those
	// families.
	Get(ctx context.Context, key keys.Key, families []string) (row Row, ok bool, err error)
	// Mutate applies a mutation to a row
	Mutate(ctx context.Context, key keys.Key, mutation Mutation) error
	// Increment adds amounts to counter cells. Counters are 8 byte
	// big-endian signed integers. Increments map family ->
	// qualifier -> amount.
	Increment(ctx context.Context, key keys.Key, increments map[string]map[string]int64) error
	// DeleteRow deletes every cell of a row
	DeleteRow(ctx context.Context, key keys.Key) error
	// Scan opens a scanner. Rows are returned in ascending key order.
	Scan(ctx context.Context, request ScanRequest) (Scanner, error)
}

// Scanner iterates over the rows of a scan. It must only be used
// by one goroutine at a time.
type Scanner interface {
	// Next advances the scanner to the next row
	// A fresh scanner must call Next once to
	// advance to the first row. Next returns false
	// if there is no next row or if it encounters an
	// error.
	Next() bool
	// Row returns the current row
	Row() Row
	// Error returns the error, if any.
	Error() error
	// Close releases the scanner on the store. Releasing may be
	// slow.
	Close() error
}
