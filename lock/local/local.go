// Package local implements an in-process lock coordinator. All
// sessions opened on one Coordinator compete for the same locks,
// which lets one process stand in for many clients in tests and in
// single host deployments.
package local

import (
	"context"
	"sync"

	"github.com/jrife/cfstore/lock"
)

var _ lock.Coordinator = (*Coordinator)(nil)

// Coordinator grants locks in arrival order
type Coordinator struct {
	mu       sync.Mutex
	queues   map[string][]*entry
	changed  chan struct{}
	sessions map[*session]struct{}
}

type entry struct {
	mode    lock.Mode
	session *session
}

// New creates a coordinator
func New() *Coordinator {
	return &Coordinator{
		queues:   make(map[string][]*entry),
		changed:  make(chan struct{}),
		sessions: make(map[*session]struct{}),
	}
}

// NewSession implements lock.Coordinator.NewSession
func (coordinator *Coordinator) NewSession(ctx context.Context) (lock.Session, error) {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	s := &session{coordinator: coordinator, done: make(chan struct{})}
	coordinator.sessions[s] = struct{}{}

	return s, nil
}

// ExpireSessions ends every open session as if its lease with the
// coordination service ran out
func (coordinator *Coordinator) ExpireSessions() {
	coordinator.mu.Lock()
	sessions := make([]*session, 0, len(coordinator.sessions))

	for s := range coordinator.sessions {
		sessions = append(sessions, s)
	}

	coordinator.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Holders returns the number of granted leases on key by mode
func (coordinator *Coordinator) Holders(key string) map[lock.Mode]int {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	holders := map[lock.Mode]int{}

	for _, e := range coordinator.queues[key] {
		if coordinator.granted(key, e) {
			holders[e.mode]++
		}
	}

	return holders
}

// Waiting returns the number of requests on key that are not
// granted yet
func (coordinator *Coordinator) Waiting(key string) int {
	coordinator.mu.Lock()
	defer coordinator.mu.Unlock()

	n := 0

	for _, e := range coordinator.queues[key] {
		if !coordinator.granted(key, e) {
			n++
		}
	}

	return n
}

// granted reports whether e may hold its lock. It must be called
// with coordinator.mu held.
func (coordinator *Coordinator) granted(key string, e *entry) bool {
	for _, other := range coordinator.queues[key] {
		if other == e {
			return true
		}

		if e.mode == lock.Exclusive || other.mode == lock.Exclusive {
			return false
		}
	}

	return false
}

// remove drops e from the queue of key and wakes up waiters. It
// must be called with coordinator.mu held.
func (coordinator *Coordinator) remove(key string, e *entry) {
	queue := coordinator.queues[key]

	for i, other := range queue {
		if other == e {
			queue = append(queue[:i:i], queue[i+1:]...)

			break
		}
	}

	if len(queue) == 0 {
		delete(coordinator.queues, key)
	} else {
		coordinator.queues[key] = queue
	}

	close(coordinator.changed)
	coordinator.changed = make(chan struct{})
}

var _ lock.Session = (*session)(nil)

type session struct {
	coordinator *Coordinator
	once        sync.Once
	done        chan struct{}
	// leases maps each held entry to its key. Guarded by
	// coordinator.mu.
	leases map[*entry]string
}

func (s *session) Acquire(ctx context.Context, key string, mode lock.Mode) (lock.Lease, error) {
	c := s.coordinator
	e := &entry{mode: mode, session: s}

	c.mu.Lock()

	select {
	case <-s.done:
		c.mu.Unlock()

		return nil, lock.ErrSessionClosed
	default:
	}

	if s.leases == nil {
		s.leases = make(map[*entry]string)
	}

	c.queues[key] = append(c.queues[key], e)
	s.leases[e] = key

	for !c.granted(key, e) {
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-s.done:
			return nil, lock.ErrSessionClosed
		case <-ctx.Done():
			c.mu.Lock()

			if _, ok := s.leases[e]; ok {
				delete(s.leases, e)
				c.remove(key, e)
			}

			c.mu.Unlock()

			return nil, ctx.Err()
		}

		c.mu.Lock()
	}

	c.mu.Unlock()

	return &lease{session: s, entry: e}, nil
}

func (s *session) Done() <-chan struct{} {
	return s.done
}

func (s *session) Close() error {
	s.once.Do(func() {
		c := s.coordinator

		c.mu.Lock()
		defer c.mu.Unlock()

		close(s.done)
		delete(c.sessions, s)

		for e, key := range s.leases {
			delete(s.leases, e)
			c.remove(key, e)
		}
	})

	return nil
}

type lease struct {
	session *session
	entry   *entry
}

func (l *lease) Release(ctx context.Context) error {
	c := l.session.coordinator

	c.mu.Lock()
	defer c.mu.Unlock()

	key, ok := l.session.leases[l.entry]

	if !ok {
		return nil
	}

	delete(l.session.leases, l.entry)
	c.remove(key, l.entry)

	return nil
}
