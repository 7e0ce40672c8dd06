package driver_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/driver"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/store/memory"
)

func TestSubmit(t *testing.T) {
	cluster, d, cleanup := open(t)
	defer cleanup()

	fill(t, d, "users", 200)
	cluster.SetFaultInjector(failOnce(memory.OpScanNext, key(100), store.ErrScannerExpired))

	var processed int64
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan error, 2)

	d.Submit(context.Background(), driver.Job{
		Table:      "users",
		Constraint: constraint.New(nil, nil),
		Families:   []string{"f"},
		Filter: func(row store.Row) bool {
			return row.Key[len(row.Key)-1]%2 == 0
		},
		Workers: 8,
		Process: func(ctx context.Context, row store.Row) error {
			atomic.AddInt64(&processed, 1)
			mu.Lock()
			seen[string(row.Key)]++
			mu.Unlock()

			return nil
		},
	}, func(err error) {
		done <- err
	})

	if err := <-done; err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(int64(100), atomic.LoadInt64(&processed)); diff != "" {
		t.Fatalf(diff)
	}

	for k, n := range seen {
		if n != 1 {
			t.Fatalf("expected %s to be processed once, got %d", k, n)
		}
	}

	// done is called exactly once
	if diff := cmp.Diff(0, len(done)); diff != "" {
		t.Fatalf(diff)
	}
}

func TestSubmitFailure(t *testing.T) {
	_, d, cleanup := open(t)
	defer cleanup()

	fill(t, d, "users", 50)
	boom := errors.New("boom")
	done := make(chan error, 2)

	d.Submit(context.Background(), driver.Job{
		Table:      "users",
		Constraint: constraint.New(nil, nil),
		Workers:    2,
		Process: func(ctx context.Context, row store.Row) error {
			if string(row.Key) == string(key(25)) {
				return boom
			}

			return nil
		},
	}, func(err error) {
		done <- err
	})

	if err := <-done; !errors.Is(err, boom) {
		t.Fatalf("expected err to be boom, got %#v", err)
	}

	d.Close()

	if diff := cmp.Diff(0, len(done)); diff != "" {
		t.Fatalf(diff)
	}
}

func TestSubmitLimit(t *testing.T) {
	_, d, cleanup := open(t)
	defer cleanup()

	fill(t, d, "users", 200)

	var processed int64
	done := make(chan error, 1)

	d.Submit(context.Background(), driver.Job{
		Table:      "users",
		Constraint: constraint.New(nil, nil),
		Filter: func(row store.Row) bool {
			return row.Key[len(row.Key)-1]%2 == 0
		},
		Limit:   30,
		Workers: 4,
		Process: func(ctx context.Context, row store.Row) error {
			if row.Key[len(row.Key)-1]%2 != 0 {
				return errors.New("filtered row was processed")
			}

			atomic.AddInt64(&processed, 1)

			return nil
		},
	}, func(err error) {
		done <- err
	})

	if err := <-done; err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(int64(30), atomic.LoadInt64(&processed)); diff != "" {
		t.Fatalf(diff)
	}
}
