package driver

import (
	"context"

	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/recovery"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/utils/log"
	"github.com/jrife/cfstore/utils/stream"
	"go.uber.org/zap"
)

var _ stream.Stream = (*ScanCursor)(nil)

type scanOptions struct {
	limit    int
	families []string
	keysOnly bool
}

// ScanCursor iterates over the rows of a range scan. When the
// underlying scanner fails with a recoverable fault the cursor
// applies the remedy and continues right after the last row it
// returned, so every row is returned once and in order. A fault
// right after such a recovery ends the scan. A ScanCursor must only
// be used by one goroutine at a time.
type ScanCursor struct {
	driver     *Driver
	ctx        context.Context
	logger     *zap.Logger
	table      string
	constraint constraint.Constraint
	options    scanOptions

	scanner    store.Scanner
	generation uint64
	row        store.Row
	last       keys.Key
	delivered  int
	recovered  bool
	done       bool
	err        error
}

func (driver *Driver) scan(ctx context.Context, table string, c constraint.Constraint, options scanOptions) (*ScanCursor, error) {
	cursor := &ScanCursor{
		driver:     driver,
		ctx:        ctx,
		logger:     log.Operation(ctx, driver.logger, "scan").With(zap.String("table", table), zap.Stringer("constraint", c)),
		table:      table,
		constraint: c,
		options:    options,
	}

	err := driver.run(ctx, table, "scan", options.families, func(t store.Table, b binding) error {
		return cursor.open(t, b, c)
	})

	if err != nil {
		return nil, err
	}

	return cursor, nil
}

func (cursor *ScanCursor) open(t store.Table, b binding, c constraint.Constraint) error {
	limit := 0

	if cursor.options.limit > 0 {
		limit = cursor.options.limit - cursor.delivered
	}

	scanner, err := t.Scan(cursor.ctx, store.ScanRequest{
		Range:    c.Range(),
		Families: cursor.options.families,
		Limit:    limit,
		KeysOnly: cursor.options.keysOnly,
	})

	if err != nil {
		return err
	}

	cursor.scanner = scanner
	cursor.generation = b.generation

	return nil
}

// Next advances the cursor to the next row. It returns false at the
// end of the scan or on failure. Error tells the two apart.
func (cursor *ScanCursor) Next() bool {
	for !cursor.done {
		if cursor.options.limit > 0 && cursor.delivered >= cursor.options.limit {
			cursor.done = true

			break
		}

		if cursor.scanner.Next() {
			cursor.row = cursor.scanner.Row()
			cursor.last = cursor.row.Key
			cursor.delivered++
			cursor.recovered = false

			return true
		}

		err := cursor.scanner.Error()

		if err == nil {
			cursor.done = true

			break
		}

		if err := cursor.resume(err); err != nil {
			cursor.err = err
			cursor.done = true
		}
	}

	cursor.row = store.Row{}

	return false
}

// resume replaces a failed scanner with one that starts right after
// the last returned row
func (cursor *ScanCursor) resume(cause error) error {
	driver := cursor.driver
	category := recovery.Classify(cause)

	if !category.Recoverable() || cursor.recovered {
		return driver.fail(cursor.logger, cursor.table, "scan", cause)
	}

	cursor.logger.Warn("recovering scan", zap.Stringer("category", category), zap.Int("delivered", cursor.delivered), zap.Error(cause))

	if err := driver.recover(cursor.ctx, cursor.table, cursor.options.families, category, cursor.generation); err != nil {
		return driver.fail(cursor.logger, cursor.table, "scan", err)
	}

	old := cursor.scanner
	cursor.scanner = nil

	go func() {
		if err := old.Close(); err != nil {
			cursor.logger.Debug("could not close failed scanner", zap.Error(err))
		}
	}()

	c := cursor.constraint

	if cursor.last != nil {
		c = c.From(keys.Next(cursor.last))
	}

	_, err := driver.attempt(cursor.ctx, cursor.table, cursor.options.families, func(t store.Table, b binding) error {
		return cursor.open(t, b, c)
	})

	if err != nil {
		return driver.fail(cursor.logger, cursor.table, "scan", err)
	}

	driver.metrics.recovered(category)
	cursor.recovered = true

	return nil
}

// Row returns the current row
func (cursor *ScanCursor) Row() store.Row {
	return cursor.row
}

// Error returns the error that ended the scan, if any. It is a
// *StoreUnavailable.
func (cursor *ScanCursor) Error() error {
	return cursor.err
}

// Delivered returns the number of rows returned so far
func (cursor *ScanCursor) Delivered() int {
	return cursor.delivered
}

// Close releases the scanner
func (cursor *ScanCursor) Close() error {
	cursor.done = true

	if cursor.scanner == nil {
		return nil
	}

	return cursor.scanner.Close()
}
