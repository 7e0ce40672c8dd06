package driver

import (
	"context"
	"sort"

	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/utils/stream"
)

// Changes describes the changes to one row. Changed and Removed are
// applied atomically. Increments are sent as a separate request
// after them.
type Changes struct {
	// Changed maps family -> qualifier -> value
	Changed map[string]map[string][]byte
	// Removed maps family -> qualifiers to delete
	Removed map[string][]string
	// Increments maps family -> qualifier -> amount to add
	Increments map[string]map[string]int64
}

// Families lists every family the changes touch
func (changes Changes) Families() []string {
	set := map[string]bool{}

	for family := range changes.Changed {
		set[family] = true
	}

	for family := range changes.Removed {
		set[family] = true
	}

	for family := range changes.Increments {
		set[family] = true
	}

	families := make([]string, 0, len(set))

	for family := range set {
		families = append(families, family)
	}

	sort.Strings(families)

	return families
}

// Get reads a row restricted to families. Empty families means all
// families of the table.
func (driver *Driver) Get(ctx context.Context, table string, row keys.Key, families []string) (store.Row, bool, error) {
	var result store.Row
	var found bool

	err := driver.run(ctx, table, "get", families, func(t store.Table, _ binding) error {
		var err error

		result, found, err = t.Get(ctx, row, families)

		return err
	})

	if err != nil {
		return store.Row{}, false, err
	}

	return result, found, nil
}

// GetCell reads one cell
func (driver *Driver) GetCell(ctx context.Context, table string, row keys.Key, family, qualifier string) ([]byte, bool, error) {
	r, found, err := driver.Get(ctx, table, row, []string{family})

	if err != nil || !found {
		return nil, false, err
	}

	value, ok := r.Cell(family, qualifier)

	return value, ok, nil
}

// Exists returns true if the row has cells in family. An empty
// family means any family.
func (driver *Driver) Exists(ctx context.Context, table string, row keys.Key, family string) (bool, error) {
	var families []string

	if family != "" {
		families = []string{family}
	}

	_, found, err := driver.Get(ctx, table, row, families)

	return found, err
}

// Put applies changes to a row
func (driver *Driver) Put(ctx context.Context, table string, row keys.Key, changes Changes) error {
	families := changes.Families()
	mutation := store.Mutation{Changed: changes.Changed, Removed: changes.Removed}

	if !mutation.Empty() {
		err := driver.run(ctx, table, "put", families, func(t store.Table, _ binding) error {
			return t.Mutate(ctx, row, mutation)
		})

		if err != nil {
			return err
		}
	}

	if len(changes.Increments) == 0 {
		return nil
	}

	return driver.run(ctx, table, "increment", families, func(t store.Table, _ binding) error {
		return t.Increment(ctx, row, changes.Increments)
	})
}

// Delete deletes a row
func (driver *Driver) Delete(ctx context.Context, table string, row keys.Key) error {
	return driver.run(ctx, table, "delete", nil, func(t store.Table, _ binding) error {
		return t.DeleteRow(ctx, row)
	})
}

// Scan opens a cursor over the rows within c. limit <= 0 means no
// limit. Empty families means all families.
func (driver *Driver) Scan(ctx context.Context, table string, c constraint.Constraint, limit int, families []string) (*ScanCursor, error) {
	return driver.scan(ctx, table, c, scanOptions{limit: limit, families: families})
}

// Count returns the number of rows within c
func (driver *Driver) Count(ctx context.Context, table string, c constraint.Constraint) (int64, error) {
	cursor, err := driver.scan(ctx, table, c, scanOptions{keysOnly: true})

	if err != nil {
		return 0, err
	}

	defer cursor.Close()

	return stream.Count(cursor)
}

// Truncate deletes every row within c and returns the number of
// rows deleted
func (driver *Driver) Truncate(ctx context.Context, table string, c constraint.Constraint) (int64, error) {
	cursor, err := driver.scan(ctx, table, c, scanOptions{keysOnly: true})

	if err != nil {
		return 0, err
	}

	defer cursor.Close()

	return stream.ForEach(cursor, func(row store.Row) error {
		return driver.Delete(ctx, table, row.Key)
	})
}
