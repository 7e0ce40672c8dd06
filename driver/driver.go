// Package driver is the entry point for reading and writing rows of
// a column-oriented store. Every operation first makes sure its table
// and families are provisioned. Faults the store reports are sorted
// into recovery categories; a recoverable fault is remedied and the
// operation retried once. A second failure is returned as a
// *StoreUnavailable.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrife/cfstore/lock"
	"github.com/jrife/cfstore/provision"
	"github.com/jrife/cfstore/recovery"
	"github.com/jrife/cfstore/schema/cache"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/store/plugins"
	"github.com/jrife/cfstore/utils/log"
	"go.uber.org/zap"
)

// Driver reads and writes rows. It is safe for concurrent use.
type Driver struct {
	config      Config
	plugin      store.Plugin
	logger      *zap.Logger
	cache       *cache.SchemaCache
	locks       *lock.Manager
	provisioner *provision.Provisioner
	metrics     *metrics
	jobs        sync.WaitGroup

	mu          sync.RWMutex
	conn        store.Conn
	generation  uint64
	restarting  bool
	restartDone chan struct{}
	closed      bool
}

// binding is a connection and the restart generation it belongs to
type binding struct {
	conn       store.Conn
	generation uint64
}

// Open opens a driver
func Open(ctx context.Context, config Config) (*Driver, error) {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.RestartTimeout <= 0 {
		config.RestartTimeout = DefaultRestartTimeout
	}

	if config.Coordinator == nil {
		return nil, fmt.Errorf("a lock coordinator is required")
	}

	plugin := plugins.Plugin(config.Plugin)

	if plugin == nil {
		return nil, fmt.Errorf("%s: %w", config.Plugin, ErrNoSuchPlugin)
	}

	conn, err := plugin.Open(ctx, config.PluginOptions)

	if err != nil {
		return nil, fmt.Errorf("could not open %s store: %w", config.Plugin, err)
	}

	driver := &Driver{
		config:  config,
		plugin:  plugin,
		logger:  config.Logger.With(zap.String("store", config.ID())),
		cache:   cache.New(),
		metrics: newMetrics(config.Registerer),
		conn:    conn,
	}

	driver.locks = lock.NewManager(lock.ManagerConfig{
		Coordinator: config.Coordinator,
		Timeout:     config.LockTimeout,
		Logger:      driver.logger,
	})
	driver.provisioner = provision.New(provision.ProvisionerConfig{
		Conn:         driver.currentConn,
		Cache:        driver.cache,
		Locks:        driver.locks,
		Schema:       config.Schema,
		PollInterval: config.PollInterval,
		PollAttempts: config.PollAttempts,
		Creations:    driver.metrics.creations,
		Alterations:  driver.metrics.alterations,
		Logger:       driver.logger,
	})

	return driver, nil
}

// Schema returns the schema cache of the driver
func (driver *Driver) Schema() *cache.SchemaCache {
	return driver.cache
}

// Provisioner returns the provisioner of the driver
func (driver *Driver) Provisioner() *provision.Provisioner {
	return driver.provisioner
}

// Close waits for running batch jobs and closes the connection
func (driver *Driver) Close() error {
	driver.mu.Lock()

	if driver.closed {
		driver.mu.Unlock()

		return nil
	}

	driver.closed = true
	driver.mu.Unlock()

	driver.jobs.Wait()

	driver.mu.Lock()
	conn := driver.conn
	driver.mu.Unlock()

	if err := driver.locks.Close(); err != nil {
		driver.logger.Warn("could not close lock session", zap.Error(err))
	}

	return conn.Close()
}

func (driver *Driver) currentConn() store.Conn {
	driver.mu.RLock()
	defer driver.mu.RUnlock()

	return driver.conn
}

// bind returns the current connection. It waits for a running
// restart to finish.
func (driver *Driver) bind(ctx context.Context) (binding, error) {
	for {
		driver.mu.RLock()
		b := binding{conn: driver.conn, generation: driver.generation}
		restarting, done, closed := driver.restarting, driver.restartDone, driver.closed
		driver.mu.RUnlock()

		if closed {
			return binding{}, ErrClosed
		}

		if !restarting {
			return b, nil
		}

		if err := driver.waitRestart(ctx, done); err != nil {
			return binding{}, err
		}
	}
}

func (driver *Driver) waitRestart(ctx context.Context, done chan struct{}) error {
	timer := time.NewTimer(driver.config.RestartTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrRestartTimeout
	}
}

// attempt provisions the table and runs fn once
func (driver *Driver) attempt(ctx context.Context, table string, families []string, fn func(store.Table, binding) error) (binding, error) {
	b, err := driver.bind(ctx)

	if err != nil {
		return b, err
	}

	if _, err := driver.provisioner.Ensure(ctx, table, families); err != nil {
		return b, err
	}

	return b, fn(b.conn.Table(table), b)
}

// run runs fn with one recovery. The first fault is only logged.
func (driver *Driver) run(ctx context.Context, table string, op string, families []string, fn func(store.Table, binding) error) error {
	logger := log.Operation(ctx, driver.logger, op).With(zap.String("table", table))
	logger.Debug("start")

	b, err := driver.attempt(ctx, table, families, fn)

	if err == nil {
		logger.Debug("return")

		return nil
	}

	category := recovery.Classify(err)

	if !category.Recoverable() {
		return driver.fail(logger, table, op, err)
	}

	logger.Warn("recovering from store fault", zap.Stringer("category", category), zap.Error(err))

	if err := driver.recover(ctx, table, families, category, b.generation); err != nil {
		return driver.fail(logger, table, op, err)
	}

	driver.metrics.recovered(category)

	if _, err := driver.attempt(ctx, table, families, fn); err != nil {
		return driver.fail(logger, table, op, err)
	}

	logger.Debug("return", zap.Bool("recovered", true))

	return nil
}

func (driver *Driver) fail(logger *zap.Logger, table, op string, err error) error {
	driver.metrics.failures.Inc()
	err = unavailable(table, op, err)
	logger.Error("operation failed", zap.Error(err))

	return err
}

// recover applies the remedy of a fault category. generation is the
// restart generation of the connection that failed.
func (driver *Driver) recover(ctx context.Context, table string, families []string, category recovery.Category, generation uint64) error {
	switch category {
	case recovery.TableMissing, recovery.FamilyMissing:
		known, _ := driver.cache.Uncache(table)
		_, err := driver.provisioner.Ensure(ctx, table, union(known.FamilyNames(), families))

		return err
	case recovery.RegionDisabled:
		_, err := driver.provisioner.EnsureEnabled(ctx, table)

		return err
	case recovery.ConnectionLost, recovery.ScanExpired:
		return driver.Restart(ctx, generation)
	}

	return fmt.Errorf("no remedy for %s faults", category)
}

// Restart replaces the connection of restart generation
// generation. It clears the schema cache and rebuilds the lock
// session. If that generation was already replaced it does nothing.
// If another caller is restarting it waits for that restart
// instead.
func (driver *Driver) Restart(ctx context.Context, generation uint64) error {
	driver.mu.Lock()

	if driver.closed {
		driver.mu.Unlock()

		return ErrClosed
	}

	if driver.generation != generation {
		driver.mu.Unlock()

		return nil
	}

	if driver.restarting {
		done := driver.restartDone
		driver.mu.Unlock()

		return driver.waitRestart(ctx, done)
	}

	driver.restarting = true
	driver.restartDone = make(chan struct{})
	old := driver.conn
	driver.mu.Unlock()

	logger := log.Operation(ctx, driver.logger, "restart")
	logger.Info("restarting", zap.Uint64("generation", generation))

	driver.cache.Invalidate()

	if err := old.Close(); err != nil {
		logger.Warn("could not close old connection", zap.Error(err))
	}

	if err := driver.locks.Reset(ctx); err != nil {
		logger.Warn("could not close lock session", zap.Error(err))
	}

	conn, err := driver.plugin.Open(ctx, driver.config.PluginOptions)

	driver.mu.Lock()

	if err == nil {
		driver.conn = conn
		driver.generation++
	}

	driver.restarting = false
	close(driver.restartDone)
	driver.mu.Unlock()

	if err != nil {
		logger.Error("could not reconnect", zap.Error(err))

		return fmt.Errorf("could not reconnect: %w", err)
	}

	driver.metrics.restarts.Inc()
	logger.Info("restarted")

	return nil
}

// Generation returns the restart generation of the current
// connection
func (driver *Driver) Generation() uint64 {
	driver.mu.RLock()
	defer driver.mu.RUnlock()

	return driver.generation
}

func union(lists ...[]string) []string {
	seen := map[string]bool{}
	result := []string{}

	for _, list := range lists {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	return result
}
