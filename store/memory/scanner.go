package memory

import (
	"fmt"

	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/store"
)

var _ store.Scanner = (*scanner)(nil)

// scanner re-seeks on every call so it observes concurrent
// writes the way a batching network scanner would
type scanner struct {
	handle   *tableHandle
	request  store.ScanRequest
	next     keys.Key
	epoch    int
	returned int
	current  store.Row
	err      error
	done     bool
	closed   bool
}

func (s *scanner) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	if s.closed {
		s.err = fmt.Errorf("scanner closed: %w", store.ErrScannerExpired)

		return false
	}

	if s.request.Limit > 0 && s.returned >= s.request.Limit {
		s.done = true

		return false
	}

	if err := s.handle.conn.check(); err != nil {
		s.err = err

		return false
	}

	cluster := s.handle.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if s.epoch != cluster.scanEpoch {
		s.err = fmt.Errorf("scanner on %s: %w", s.handle.name, store.ErrScannerExpired)

		return false
	}

	t, err := cluster.serving(s.handle.name)

	if err != nil {
		s.err = err

		return false
	}

	for {
		var k, v interface{}

		if s.next == nil {
			k, v = t.rows.Min()
		} else {
			k, v = t.rows.Ceiling(s.next)
		}

		if k == nil || !s.request.Range.Contains(k.(keys.Key)) {
			s.done = true

			return false
		}

		key := k.(keys.Key)

		if err := cluster.enter(OpScanNext, s.handle.name, key); err != nil {
			s.err = err

			return false
		}

		s.next = keys.Next(key)
		families := v.(row).copy(s.request.Families, s.request.KeysOnly)
		r := store.Row{Key: append(keys.Key{}, key...), Families: families}

		if r.Empty() {
			continue
		}

		s.current = r
		s.returned++

		return true
	}
}

func (s *scanner) Row() store.Row {
	return s.current
}

func (s *scanner) Error() error {
	return s.err
}

func (s *scanner) Close() error {
	s.closed = true

	return nil
}
