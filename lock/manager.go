package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrife/cfstore/utils/log"
	"go.uber.org/zap"
)

// ManagerConfig configures a Manager
type ManagerConfig struct {
	// Coordinator grants the locks
	Coordinator Coordinator
	// Timeout bounds every acquisition. Zero means DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to zap.L()
	Logger *zap.Logger
}

// Manager hands out one SchemaLock per table and keeps the
// coordination session they share alive
type Manager struct {
	coordinator Coordinator
	timeout     time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	session Session
	locks   map[string]*SchemaLock
}

// NewManager creates a manager. The session is opened on first use.
func NewManager(config ManagerConfig) *Manager {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	return &Manager{
		coordinator: config.Coordinator,
		timeout:     config.Timeout,
		logger:      config.Logger,
		locks:       make(map[string]*SchemaLock),
	}
}

// Lock returns the lock of a table. Every call for the same table
// returns the same lock.
func (manager *Manager) Lock(table string) *SchemaLock {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if l, ok := manager.locks[table]; ok {
		return l
	}

	l := &SchemaLock{
		manager: manager,
		table:   table,
		key:     Sanitize(table),
		shared:  make(map[Owner]int),
		leases:  make(map[Owner]Lease),
	}
	manager.locks[table] = l

	return l
}

// Reset closes the current session. The next acquisition opens a
// new one. Locks held through the old session are lost: releasing
// them afterwards fails with ErrNotHolder.
func (manager *Manager) Reset(ctx context.Context) error {
	manager.mu.Lock()
	session := manager.session
	manager.session = nil
	manager.forgetHolds()
	manager.mu.Unlock()

	if session == nil {
		return nil
	}

	log.Operation(ctx, manager.logger, "reset").Info("closing coordination session")

	return session.Close()
}

// Close closes the current session
func (manager *Manager) Close() error {
	return manager.Reset(context.Background())
}

// forgetHolds drops the holds recorded by every lock. The caller
// holds manager.mu.
func (manager *Manager) forgetHolds() {
	for _, l := range manager.locks {
		l.forget()
	}
}

// bind returns a live session, opening a new one if the current
// session ended
func (manager *Manager) bind(ctx context.Context) (Session, error) {
	manager.mu.Lock()
	defer manager.mu.Unlock()

	if manager.session != nil {
		select {
		case <-manager.session.Done():
			log.Operation(ctx, manager.logger, "bind").Warn("coordination session expired, binding a new one")
			manager.session = nil
			manager.forgetHolds()
		default:
			return manager.session, nil
		}
	}

	session, err := manager.coordinator.NewSession(ctx)

	if err != nil {
		return nil, fmt.Errorf("could not open coordination session: %w", err)
	}

	manager.session = session

	return session, nil
}

// acquire obtains a lease within the manager's timeout. A session
// that ends while acquiring is replaced once.
func (manager *Manager) acquire(ctx context.Context, key string, mode Mode) (Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, manager.timeout)
	defer cancel()

	var lease Lease
	var err error

	for attempt := 0; attempt < 2; attempt++ {
		var session Session

		session, err = manager.bind(ctx)

		if err != nil {
			break
		}

		lease, err = session.Acquire(ctx, key, mode)

		if !errors.Is(err, ErrSessionClosed) {
			break
		}
	}

	if err == nil {
		return lease, nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%s lock on %s: %w", mode, key, ErrLockTimeout)
	}

	return nil, fmt.Errorf("%s lock on %s: %w", mode, key, err)
}
