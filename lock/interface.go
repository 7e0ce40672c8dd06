// Package lock provides per-table shared/exclusive schema locks that
// are coordinated across processes by a distributed coordination
// service.
//
// Shared holders never block each other. An exclusive holder excludes
// every other holder of the same table, and only of that table.
// Holders are identified by an Owner token rather than a goroutine.
// An owner that already holds the exclusive lock of a table may
// acquire it again. An owner holding the shared lock that asks for
// the exclusive one gives up its shared hold first and gets it back
// once it releases the exclusive lock.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/jrife/cfstore/utils/uuid"
)

// DefaultTimeout bounds every lock acquisition unless configured
// otherwise
const DefaultTimeout = 10 * time.Second

var (
	// ErrLockTimeout is returned when a lock could not be acquired
	// within the acquisition timeout
	ErrLockTimeout = errors.New("timed out acquiring schema lock")
	// ErrNotHolder is returned when an owner releases a lock it
	// does not hold
	ErrNotHolder = errors.New("owner does not hold the lock")
	// ErrSessionClosed is returned by a session that expired or was
	// closed. Leases it granted are gone.
	ErrSessionClosed = errors.New("coordination session closed")
)

// Mode is a lock mode
type Mode int

const (
	// None means no lock is held
	None Mode = iota
	// Shared locks may be held by any number of owners
	Shared
	// Exclusive locks exclude every other holder
	Exclusive
)

// String implements fmt.Stringer
func (mode Mode) String() string {
	switch mode {
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	}

	return "none"
}

// Owner identifies a lock holder
type Owner string

// NewOwner returns a new unique owner
func NewOwner() Owner {
	return Owner(uuid.MustUUID())
}

// Coordinator is a distributed coordination service
type Coordinator interface {
	// NewSession opens a session. Leases granted through a session
	// are released when the session ends.
	NewSession(ctx context.Context) (Session, error)
}

// Session is a live binding to the coordination service
type Session interface {
	// Acquire blocks until the lock named key is granted in mode or
	// ctx is done. Grants are ordered by arrival: a shared request
	// waits for every exclusive request that arrived before it and an
	// exclusive request waits for every request that arrived before it.
	Acquire(ctx context.Context, key string, mode Mode) (Lease, error)
	// Done is closed when the session expires or is closed
	Done() <-chan struct{}
	// Close ends the session and releases its leases
	Close() error
}

// Lease is one granted lock
type Lease interface {
	// Release gives the lock back. Releasing a lease of a session
	// that has ended has no effect.
	Release(ctx context.Context) error
}
