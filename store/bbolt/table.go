package bbolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/store"
	bolt "go.etcd.io/bbolt"
)

// scanBatchSize is the number of rows a scanner reads
// per read transaction
const scanBatchSize = 128

var _ store.Table = (*table)(nil)

type table struct {
	db   *bolt.DB
	name string
}

func (t *table) Name() string {
	return t.name
}

func (t *table) Get(ctx context.Context, key keys.Key, families []string) (store.Row, bool, error) {
	row := store.Row{Key: append(keys.Key{}, key...), Families: map[string]map[string][]byte{}}

	err := t.db.View(func(txn *bolt.Tx) error {
		_, bucket, err := serving(txn, t.name, families)

		if err != nil {
			return err
		}

		prefix := rowPrefix(key)
		cursor := bucket.Cursor()

		for k, v := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = cursor.Next() {
			_, family, qualifier, err := splitCellKey(k)

			if err != nil {
				return err
			}

			if len(families) > 0 && !contains(families, family) {
				continue
			}

			addCell(&row, family, qualifier, v)
		}

		return nil
	})

	if err != nil {
		return store.Row{}, false, wrapError(err)
	}

	return row, !row.Empty(), nil
}

func (t *table) Mutate(ctx context.Context, key keys.Key, mutation store.Mutation) error {
	if len(key) == 0 {
		return fmt.Errorf("row key must not be empty")
	}

	families := make([]string, 0, len(mutation.Changed)+len(mutation.Removed))

	for family := range mutation.Changed {
		families = append(families, family)
	}

	for family := range mutation.Removed {
		families = append(families, family)
	}

	return wrapError(t.db.Update(func(txn *bolt.Tx) error {
		_, bucket, err := serving(txn, t.name, families)

		if err != nil {
			return err
		}

		for family, columns := range mutation.Changed {
			for qualifier, value := range columns {
				if err := bucket.Put(cellKey(key, family, qualifier), value); err != nil {
					return err
				}
			}
		}

		for family, qualifiers := range mutation.Removed {
			for _, qualifier := range qualifiers {
				if err := bucket.Delete(cellKey(key, family, qualifier)); err != nil {
					return err
				}
			}
		}

		return nil
	}))
}

func (t *table) Increment(ctx context.Context, key keys.Key, increments map[string]map[string]int64) error {
	families := make([]string, 0, len(increments))

	for family := range increments {
		families = append(families, family)
	}

	return wrapError(t.db.Update(func(txn *bolt.Tx) error {
		_, bucket, err := serving(txn, t.name, families)

		if err != nil {
			return err
		}

		for family, columns := range increments {
			for qualifier, amount := range columns {
				k := cellKey(key, family, qualifier)
				current, err := store.DecodeCounter(bucket.Get(k))

				if err != nil {
					return fmt.Errorf("%s:%s: %s", family, qualifier, err.Error())
				}

				if err := bucket.Put(k, store.EncodeCounter(current+amount)); err != nil {
					return err
				}
			}
		}

		return nil
	}))
}

func (t *table) DeleteRow(ctx context.Context, key keys.Key) error {
	return wrapError(t.db.Update(func(txn *bolt.Tx) error {
		_, bucket, err := serving(txn, t.name, nil)

		if err != nil {
			return err
		}

		prefix := rowPrefix(key)
		cursor := bucket.Cursor()

		for k, _ := cursor.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = cursor.Seek(prefix) {
			if err := cursor.Delete(); err != nil {
				return err
			}
		}

		return nil
	}))
}

func (t *table) Scan(ctx context.Context, request store.ScanRequest) (store.Scanner, error) {
	err := t.db.View(func(txn *bolt.Tx) error {
		_, _, err := serving(txn, t.name, request.Families)

		return err
	})

	if err != nil {
		return nil, wrapError(err)
	}

	return &scanner{table: t, request: request, next: request.Range.Min}, nil
}

var _ store.Scanner = (*scanner)(nil)

// scanner reads rows in batches, each batch in its own short read
// transaction, so an open scanner never pins a transaction
type scanner struct {
	table    *table
	request  store.ScanRequest
	next     keys.Key
	batch    []store.Row
	current  store.Row
	returned int
	err      error
	done     bool
}

func (s *scanner) Next() bool {
	if s.err != nil {
		return false
	}

	if s.request.Limit > 0 && s.returned >= s.request.Limit {
		return false
	}

	if len(s.batch) == 0 && !s.done {
		s.fill()
	}

	if len(s.batch) == 0 {
		return false
	}

	s.current = s.batch[0]
	s.batch = s.batch[1:]
	s.returned++

	return true
}

func (s *scanner) fill() {
	err := s.table.db.View(func(txn *bolt.Tx) error {
		_, bucket, err := serving(txn, s.table.name, s.request.Families)

		if err != nil {
			return err
		}

		cursor := bucket.Cursor()

		var k, v []byte

		if s.next == nil {
			k, v = cursor.First()
		} else {
			k, v = cursor.Seek(rowPrefix(s.next))
		}

		var row *store.Row

		for ; k != nil; k, v = cursor.Next() {
			key, family, qualifier, err := splitCellKey(k)

			if err != nil {
				return err
			}

			if !s.request.Range.Contains(key) {
				break
			}

			if row == nil || keys.Compare(row.Key, key) != 0 {
				if row != nil && !row.Empty() {
					s.batch = append(s.batch, *row)
				}

				if len(s.batch) >= scanBatchSize {
					s.next = key

					return nil
				}

				row = &store.Row{Key: key, Families: map[string]map[string][]byte{}}
			}

			if len(s.request.Families) > 0 && !contains(s.request.Families, family) {
				continue
			}

			if s.request.KeysOnly {
				v = nil
			}

			addCell(row, family, qualifier, v)
		}

		if row != nil && !row.Empty() {
			s.batch = append(s.batch, *row)
		}

		s.done = true

		return nil
	})

	if err != nil {
		s.err = wrapError(err)
	}
}

func (s *scanner) Row() store.Row {
	return s.current
}

func (s *scanner) Error() error {
	return s.err
}

func (s *scanner) Close() error {
	s.batch = nil
	s.done = true

	return nil
}

func addCell(row *store.Row, family, qualifier string, value []byte) {
	columns, ok := row.Families[family]

	if !ok {
		columns = map[string][]byte{}
		row.Families[family] = columns
	}

	if value != nil {
		value = append([]byte{}, value...)
	}

	columns[qualifier] = value
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}

	return false
}
