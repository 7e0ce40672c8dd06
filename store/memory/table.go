package memory

import (
	"context"
	"fmt"

	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/store"
)

var _ store.Table = (*tableHandle)(nil)

type tableHandle struct {
	conn *conn
	name string
}

func (handle *tableHandle) Name() string {
	return handle.name
}

func (handle *tableHandle) Get(ctx context.Context, key keys.Key, families []string) (store.Row, bool, error) {
	if err := handle.conn.check(); err != nil {
		return store.Row{}, false, err
	}

	cluster := handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpGet, handle.name, key); err != nil {
		return store.Row{}, false, err
	}

	t, err := cluster.serving(handle.name)

	if err != nil {
		return store.Row{}, false, err
	}

	if err := t.checkFamilies(families); err != nil {
		return store.Row{}, false, err
	}

	r, ok := t.rows.Get(key)

	if !ok {
		return store.Row{}, false, nil
	}

	result := store.Row{Key: append(keys.Key{}, key...), Families: r.(row).copy(families, false)}

	return result, !result.Empty(), nil
}

func (handle *tableHandle) Mutate(ctx context.Context, key keys.Key, mutation store.Mutation) error {
	if len(key) == 0 {
		return fmt.Errorf("row key must not be empty")
	}

	if err := handle.conn.check(); err != nil {
		return err
	}

	cluster := handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpMutate, handle.name, key); err != nil {
		return err
	}

	t, err := cluster.serving(handle.name)

	if err != nil {
		return err
	}

	for family := range mutation.Changed {
		if err := t.checkFamilies([]string{family}); err != nil {
			return err
		}
	}

	for family := range mutation.Removed {
		if err := t.checkFamilies([]string{family}); err != nil {
			return err
		}
	}

	r := t.row(key)

	for family, columns := range mutation.Changed {
		if r[family] == nil {
			r[family] = make(map[string][]byte)
		}

		for qualifier, value := range columns {
			r[family][qualifier] = append([]byte{}, value...)
		}
	}

	for family, qualifiers := range mutation.Removed {
		for _, qualifier := range qualifiers {
			delete(r[family], qualifier)
		}
	}

	t.prune(key, r)

	return nil
}

func (handle *tableHandle) Increment(ctx context.Context, key keys.Key, increments map[string]map[string]int64) error {
	if err := handle.conn.check(); err != nil {
		return err
	}

	cluster := handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpIncrement, handle.name, key); err != nil {
		return err
	}

	t, err := cluster.serving(handle.name)

	if err != nil {
		return err
	}

	for family := range increments {
		if err := t.checkFamilies([]string{family}); err != nil {
			return err
		}
	}

	r := t.row(key)
	updated := make(map[string]map[string][]byte)

	for family, columns := range increments {
		updated[family] = make(map[string][]byte)

		for qualifier, amount := range columns {
			current, err := store.DecodeCounter(r[family][qualifier])

			if err != nil {
				return fmt.Errorf("%s:%s: %s", family, qualifier, err.Error())
			}

			updated[family][qualifier] = store.EncodeCounter(current + amount)
		}
	}

	for family, columns := range updated {
		if r[family] == nil {
			r[family] = make(map[string][]byte)
		}

		for qualifier, value := range columns {
			r[family][qualifier] = value
		}
	}

	t.prune(key, r)

	return nil
}

func (handle *tableHandle) DeleteRow(ctx context.Context, key keys.Key) error {
	if err := handle.conn.check(); err != nil {
		return err
	}

	cluster := handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpDeleteRow, handle.name, key); err != nil {
		return err
	}

	t, err := cluster.serving(handle.name)

	if err != nil {
		return err
	}

	t.rows.Remove(key)

	return nil
}

func (handle *tableHandle) Scan(ctx context.Context, request store.ScanRequest) (store.Scanner, error) {
	if err := handle.conn.check(); err != nil {
		return nil, err
	}

	cluster := handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpScan, handle.name, request.Range.Min); err != nil {
		return nil, err
	}

	t, err := cluster.serving(handle.name)

	if err != nil {
		return nil, err
	}

	if err := t.checkFamilies(request.Families); err != nil {
		return nil, err
	}

	return &scanner{
		handle:  handle,
		request: request,
		next:    request.Range.Min,
		epoch:   cluster.scanEpoch,
	}, nil
}

// row returns the row stored at key, creating it if needed
func (t *table) row(key keys.Key) row {
	if r, ok := t.rows.Get(key); ok {
		return r.(row)
	}

	r := make(row)
	t.rows.Put(append(keys.Key{}, key...), r)

	return r
}

// prune removes the row at key if it holds no cells
func (t *table) prune(key keys.Key, r row) {
	for _, columns := range r {
		if len(columns) > 0 {
			return
		}
	}

	t.rows.Remove(key)
}
