package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrife/cfstore/utils/log"
	"go.uber.org/zap"
)

// SchemaLock is the shared/exclusive lock of one table
type SchemaLock struct {
	manager *Manager
	table   string
	key     string

	mu sync.Mutex
	// shared counts the shared holds of each owner. One lease
	// backs all holds of an owner.
	shared map[Owner]int
	leases map[Owner]Lease
	// exclusive is nil when no owner in this process holds the
	// exclusive lock
	exclusive *exclusiveHold
}

type exclusiveHold struct {
	owner Owner
	lease Lease
	depth int
	// restore is the number of shared holds to give back to the
	// owner when it releases the exclusive lock
	restore int
}

// Table returns the name of the table this lock protects
func (l *SchemaLock) Table() string {
	return l.table
}

// Key returns the coordination key of the lock
func (l *SchemaLock) Key() string {
	return l.key
}

// Mode returns the mode in which owner holds the lock
func (l *SchemaLock) Mode(owner Owner) Mode {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.exclusive != nil && l.exclusive.owner == owner {
		return Exclusive
	}

	if l.shared[owner] > 0 {
		return Shared
	}

	return None
}

// AcquireShared acquires the lock in shared mode. An owner that
// holds the exclusive lock already has shared access.
func (l *SchemaLock) AcquireShared(ctx context.Context, owner Owner) error {
	logger := l.logger(ctx, "acquireShared")

	l.mu.Lock()

	if l.exclusive != nil && l.exclusive.owner == owner {
		l.exclusive.restore++
		l.mu.Unlock()

		return nil
	}

	if l.shared[owner] > 0 {
		l.shared[owner]++
		l.mu.Unlock()

		return nil
	}

	l.mu.Unlock()

	logger.Debug("start")

	lease, err := l.manager.acquire(ctx, l.key, Shared)

	if err != nil {
		logger.Warn("could not acquire shared lock", zap.Error(err))

		return err
	}

	l.mu.Lock()
	l.shared[owner] = 1
	l.leases[owner] = lease
	l.mu.Unlock()

	logger.Debug("return")

	return nil
}

// ReleaseShared releases one shared hold of owner
func (l *SchemaLock) ReleaseShared(ctx context.Context, owner Owner) error {
	l.mu.Lock()

	if l.exclusive != nil && l.exclusive.owner == owner && l.exclusive.restore > 0 {
		l.exclusive.restore--
		l.mu.Unlock()

		return nil
	}

	if l.shared[owner] == 0 {
		l.mu.Unlock()

		return fmt.Errorf("shared lock on %s: %w", l.key, ErrNotHolder)
	}

	l.shared[owner]--

	if l.shared[owner] > 0 {
		l.mu.Unlock()

		return nil
	}

	lease := l.leases[owner]
	delete(l.shared, owner)
	delete(l.leases, owner)
	l.mu.Unlock()

	l.logger(ctx, "releaseShared").Debug("releasing")

	return lease.Release(ctx)
}

// AcquireExclusive acquires the lock in exclusive mode. It is
// reentrant for the owner that holds it. A shared hold of owner is
// released first and given back by ReleaseExclusive.
func (l *SchemaLock) AcquireExclusive(ctx context.Context, owner Owner) error {
	logger := l.logger(ctx, "acquireExclusive")

	l.mu.Lock()

	if l.exclusive != nil && l.exclusive.owner == owner {
		l.exclusive.depth++
		l.mu.Unlock()

		return nil
	}

	restore := l.shared[owner]
	sharedLease := l.leases[owner]
	delete(l.shared, owner)
	delete(l.leases, owner)
	l.mu.Unlock()

	logger.Debug("start", zap.Int("sharedHolds", restore))

	if sharedLease != nil {
		if err := sharedLease.Release(ctx); err != nil {
			logger.Warn("could not release shared lock before promotion", zap.Error(err))
		}
	}

	lease, err := l.manager.acquire(ctx, l.key, Exclusive)

	if err != nil {
		logger.Warn("could not acquire exclusive lock", zap.Error(err))

		if restore > 0 {
			l.reacquireShared(ctx, owner, restore)
		}

		return err
	}

	l.mu.Lock()
	l.exclusive = &exclusiveHold{owner: owner, lease: lease, depth: 1, restore: restore}
	l.mu.Unlock()

	logger.Debug("return")

	return nil
}

// ReleaseExclusive releases one exclusive hold of owner. When the
// last hold is released any shared holds the owner had before
// promotion are acquired again.
func (l *SchemaLock) ReleaseExclusive(ctx context.Context, owner Owner) error {
	l.mu.Lock()

	if l.exclusive == nil || l.exclusive.owner != owner {
		l.mu.Unlock()

		return fmt.Errorf("exclusive lock on %s: %w", l.key, ErrNotHolder)
	}

	l.exclusive.depth--

	if l.exclusive.depth > 0 {
		l.mu.Unlock()

		return nil
	}

	hold := l.exclusive
	l.exclusive = nil
	l.mu.Unlock()

	l.logger(ctx, "releaseExclusive").Debug("releasing", zap.Int("sharedHolds", hold.restore))

	err := hold.lease.Release(ctx)

	if hold.restore > 0 {
		if rerr := l.reacquireShared(ctx, owner, hold.restore); rerr != nil && err == nil {
			err = rerr
		}
	}

	return err
}

// forget drops every hold without releasing its lease
func (l *SchemaLock) forget() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.shared = make(map[Owner]int)
	l.leases = make(map[Owner]Lease)
	l.exclusive = nil
}

func (l *SchemaLock) reacquireShared(ctx context.Context, owner Owner, holds int) error {
	lease, err := l.manager.acquire(ctx, l.key, Shared)

	if err != nil {
		l.logger(ctx, "reacquireShared").Error("could not reacquire shared lock", zap.Error(err))

		return err
	}

	l.mu.Lock()
	l.shared[owner] = holds
	l.leases[owner] = lease
	l.mu.Unlock()

	return nil
}

func (l *SchemaLock) logger(ctx context.Context, operation string) *zap.Logger {
	return log.Operation(ctx, l.manager.logger, operation).With(zap.String("table", l.table))
}
