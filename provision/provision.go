// Package provision makes sure the tables and column families a
// process needs exist in the store with the configured properties.
//
// Many processes may provision the same table at the same time. They
// coordinate through the table's schema lock: reads of the remote
// schema happen under the shared lock, creations and alterations
// under the exclusive lock after a second read. A family that some
// other process altered between the two reads is left alone, so
// concurrent provisioners with different forced properties do at
// most one alteration each per cache lifetime instead of undoing
// each other forever.
package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jrife/cfstore/lock"
	"github.com/jrife/cfstore/schema"
	"github.com/jrife/cfstore/schema/cache"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/utils/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is the time between two reads of the
	// schema while waiting for an alteration to become visible
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultPollAttempts bounds the number of reads while waiting
	// for an alteration to become visible
	DefaultPollAttempts = 100
)

var (
	// ErrNotConverged is returned when an alteration did not become
	// visible in the remote schema in time
	ErrNotConverged = errors.New("schema alteration did not become visible")
)

// ProvisionerConfig configures a Provisioner
type ProvisionerConfig struct {
	// Conn returns the current store connection
	Conn func() store.Conn
	// Cache holds provisioned descriptors
	Cache *cache.SchemaCache
	// Locks hands out the schema locks
	Locks *lock.Manager
	// Schema holds the desired family properties
	Schema schema.Config
	// PollInterval defaults to DefaultPollInterval
	PollInterval time.Duration
	// PollAttempts defaults to DefaultPollAttempts
	PollAttempts int
	// Creations counts created tables. Optional.
	Creations prometheus.Counter
	// Alterations counts altered tables. Optional.
	Alterations prometheus.Counter
	// Logger defaults to zap.L()
	Logger *zap.Logger
}

// Provisioner provisions tables
type Provisioner struct {
	conn         func() store.Conn
	cache        *cache.SchemaCache
	locks        *lock.Manager
	schema       schema.Config
	pollInterval time.Duration
	pollAttempts int
	creations    prometheus.Counter
	alterations  prometheus.Counter
	logger       *zap.Logger
}

// New creates a provisioner
func New(config ProvisionerConfig) *Provisioner {
	if config.Logger == nil {
		config.Logger = zap.L()
	}

	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	if config.PollAttempts <= 0 {
		config.PollAttempts = DefaultPollAttempts
	}

	return &Provisioner{
		conn:         config.Conn,
		cache:        config.Cache,
		locks:        config.Locks,
		schema:       config.Schema,
		pollInterval: config.PollInterval,
		pollAttempts: config.PollAttempts,
		creations:    config.Creations,
		alterations:  config.Alterations,
		logger:       config.Logger,
	}
}

// Families returns the families to provision for a table: the
// requested ones plus those configured for the table, sorted
func (provisioner *Provisioner) Families(table string, requested []string) []string {
	set := map[string]bool{}

	for _, family := range requested {
		set[family] = true
	}

	for family := range provisioner.schema.Tables[table].Families {
		set[family] = true
	}

	families := make([]string, 0, len(set))

	for family := range set {
		families = append(families, family)
	}

	sort.Strings(families)

	return families
}

// Ensure makes sure table exists with every family in families and
// the configured forced properties. A cached descriptor that has
// every family is returned without talking to the store.
func (provisioner *Provisioner) Ensure(ctx context.Context, table string, families []string) (store.TableDescriptor, error) {
	families = provisioner.Families(table, families)

	if desc, ok := provisioner.cache.Lookup(table); ok && desc.HasFamilies(families...) {
		return desc, nil
	}

	logger := provisioner.opLogger(ctx, "ensure", table)
	logger.Debug("start", zap.Strings("families", families))

	owner := lock.NewOwner()
	l := provisioner.locks.Lock(table)

	if err := l.AcquireShared(ctx, owner); err != nil {
		return store.TableDescriptor{}, err
	}

	defer provisioner.release(ctx, logger, l.ReleaseShared, owner)

	admin := provisioner.conn().Admin()
	before, err := admin.DescribeTable(ctx, table)

	if errors.Is(err, store.ErrTableNotFound) {
		return provisioner.create(ctx, logger, l, owner, table, families)
	} else if err != nil {
		return store.TableDescriptor{}, err
	}

	pending, err := provisioner.pending(before, families, admin.Compressions())

	if err != nil {
		return store.TableDescriptor{}, err
	}

	if len(pending) == 0 {
		provisioner.cache.Cache(before)
		logger.Debug("return", zap.String("result", "unchanged"))

		return before, nil
	}

	return provisioner.alter(ctx, logger, l, owner, before, families)
}

// EnsureEnabled makes sure table is serving
func (provisioner *Provisioner) EnsureEnabled(ctx context.Context, table string) (store.TableDescriptor, error) {
	logger := provisioner.opLogger(ctx, "ensureEnabled", table)
	logger.Debug("start")

	owner := lock.NewOwner()
	l := provisioner.locks.Lock(table)

	if err := l.AcquireShared(ctx, owner); err != nil {
		return store.TableDescriptor{}, err
	}

	defer provisioner.release(ctx, logger, l.ReleaseShared, owner)

	admin := provisioner.conn().Admin()
	desc, err := admin.DescribeTable(ctx, table)

	if err != nil {
		return store.TableDescriptor{}, err
	}

	if !desc.Enabled {
		if err := l.AcquireExclusive(ctx, owner); err != nil {
			return store.TableDescriptor{}, err
		}

		defer provisioner.release(ctx, logger, l.ReleaseExclusive, owner)

		if desc, err = admin.DescribeTable(ctx, table); err != nil {
			return store.TableDescriptor{}, err
		}

		if !desc.Enabled {
			logger.Info("enabling table")

			if err := admin.EnableTable(ctx, table); err != nil {
				return store.TableDescriptor{}, err
			}

			if desc, err = admin.DescribeTable(ctx, table); err != nil {
				return store.TableDescriptor{}, err
			}
		}
	}

	provisioner.cache.Cache(desc)
	logger.Debug("return", zap.Bool("enabled", desc.Enabled))

	return desc, nil
}

// create creates table under the exclusive lock. The caller holds
// the shared lock.
func (provisioner *Provisioner) create(ctx context.Context, logger *zap.Logger, l *lock.SchemaLock, owner lock.Owner, table string, families []string) (store.TableDescriptor, error) {
	if err := l.AcquireExclusive(ctx, owner); err != nil {
		return store.TableDescriptor{}, err
	}

	defer provisioner.release(ctx, logger, l.ReleaseExclusive, owner)

	admin := provisioner.conn().Admin()
	current, err := admin.DescribeTable(ctx, table)

	if err == nil {
		logger.Debug("table was created concurrently")

		// Every family the creator made counts as set by someone else.
		// Only missing families are added.
		return provisioner.alterLocked(ctx, logger, store.NewTableDescriptor(table), current, families)
	} else if !errors.Is(err, store.ErrTableNotFound) {
		return store.TableDescriptor{}, err
	}

	desc := store.NewTableDescriptor(table)
	supported := admin.Compressions()

	for _, family := range families {
		fd, err := provisioner.schema.Desired(table, family).Descriptor(family, supported)

		if err != nil {
			return store.TableDescriptor{}, fmt.Errorf("family %s: %w", family, err)
		}

		desc.Families[family] = fd
	}

	logger.Info("creating table", zap.Strings("families", families))

	if err := admin.CreateTable(ctx, desc); err != nil {
		return store.TableDescriptor{}, err
	}

	if provisioner.creations != nil {
		provisioner.creations.Inc()
	}

	created, err := admin.DescribeTable(ctx, table)

	if err != nil {
		return store.TableDescriptor{}, err
	}

	provisioner.cache.Cache(created)
	logger.Debug("return", zap.String("result", "created"))

	return created, nil
}

// alter brings table in line with the desired schema under the
// exclusive lock. before is the descriptor read under the shared
// lock.
func (provisioner *Provisioner) alter(ctx context.Context, logger *zap.Logger, l *lock.SchemaLock, owner lock.Owner, before store.TableDescriptor, families []string) (store.TableDescriptor, error) {
	if err := l.AcquireExclusive(ctx, owner); err != nil {
		return store.TableDescriptor{}, err
	}

	defer provisioner.release(ctx, logger, l.ReleaseExclusive, owner)

	current, err := provisioner.conn().Admin().DescribeTable(ctx, before.Name)

	if err != nil {
		return store.TableDescriptor{}, err
	}

	return provisioner.alterLocked(ctx, logger, before, current, families)
}

type change struct {
	family   store.FamilyDescriptor
	add      bool
	modified []string
}

// pendingSince lists the changes needed to bring current in line with
// the desired schema. Families that differ between before and
// current were changed by someone else and are only checked for
// existence.
func (provisioner *Provisioner) pendingSince(before, current store.TableDescriptor, families []string, supported []string) ([]change, error) {
	var changes []change

	for _, family := range families {
		desired := provisioner.schema.Desired(current.Name, family)
		actual, ok := current.Families[family]

		if !ok {
			fd, err := desired.Descriptor(family, supported)

			if err != nil {
				return nil, fmt.Errorf("family %s: %w", family, err)
			}

			changes = append(changes, change{family: fd, add: true})

			continue
		}

		if previous, ok := before.Families[family]; !ok || previous != actual {
			continue
		}

		altered, props, err := desired.Alter(actual, supported)

		if err != nil {
			return nil, fmt.Errorf("family %s: %w", family, err)
		}

		if len(props) > 0 {
			changes = append(changes, change{family: altered, modified: props})
		}
	}

	return changes, nil
}

func (provisioner *Provisioner) pending(current store.TableDescriptor, families []string, supported []string) ([]change, error) {
	return provisioner.pendingSince(current, current, families, supported)
}

// alterLocked applies pending changes. The caller holds the
// exclusive lock.
func (provisioner *Provisioner) alterLocked(ctx context.Context, logger *zap.Logger, before, current store.TableDescriptor, families []string) (store.TableDescriptor, error) {
	admin := provisioner.conn().Admin()
	table := current.Name
	changes, err := provisioner.pendingSince(before, current, families, admin.Compressions())

	if err != nil {
		return store.TableDescriptor{}, err
	}

	if len(changes) == 0 {
		if !current.Enabled {
			return provisioner.enable(ctx, logger, table)
		}

		provisioner.cache.Cache(current)
		logger.Debug("return", zap.String("result", "converged concurrently"))

		return current, nil
	}

	logger.Info("altering table", zap.Int("changes", len(changes)))

	if err := admin.DisableTable(ctx, table); err != nil {
		return store.TableDescriptor{}, err
	}

	if err := provisioner.apply(ctx, logger, table, changes); err != nil {
		// Put the table back into service before giving up
		if eerr := admin.EnableTable(ctx, table); eerr != nil {
			logger.Error("could not enable table after failed alteration", zap.Error(eerr))
		}

		return store.TableDescriptor{}, err
	}

	if provisioner.alterations != nil {
		provisioner.alterations.Inc()
	}

	return provisioner.enable(ctx, logger, table)
}

// apply sends changes to the store and waits until they are visible
func (provisioner *Provisioner) apply(ctx context.Context, logger *zap.Logger, table string, changes []change) error {
	admin := provisioner.conn().Admin()

	for _, c := range changes {
		if c.add {
			logger.Info("adding family", zap.String("family", c.family.Name))

			if err := admin.AddFamily(ctx, table, c.family); err != nil && !errors.Is(err, store.ErrFamilyExists) {
				return err
			}

			continue
		}

		logger.Info("modifying family", zap.String("family", c.family.Name), zap.Strings("properties", c.modified))

		if err := admin.ModifyFamily(ctx, table, c.family); err != nil {
			return err
		}
	}

	for attempt := 0; attempt < provisioner.pollAttempts; attempt++ {
		desc, err := admin.DescribeTable(ctx, table)

		if err != nil {
			return err
		}

		if visible(desc, changes) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(provisioner.pollInterval):
		}
	}

	return fmt.Errorf("%s: %w", table, ErrNotConverged)
}

func visible(desc store.TableDescriptor, changes []change) bool {
	for _, c := range changes {
		if actual, ok := desc.Families[c.family.Name]; !ok || (!c.add && actual != c.family) {
			return false
		}
	}

	return true
}

func (provisioner *Provisioner) enable(ctx context.Context, logger *zap.Logger, table string) (store.TableDescriptor, error) {
	admin := provisioner.conn().Admin()

	if err := admin.EnableTable(ctx, table); err != nil {
		return store.TableDescriptor{}, err
	}

	desc, err := admin.DescribeTable(ctx, table)

	if err != nil {
		return store.TableDescriptor{}, err
	}

	if !desc.Enabled {
		return store.TableDescriptor{}, fmt.Errorf("%s: %w", table, store.ErrTableDisabled)
	}

	provisioner.cache.Cache(desc)
	logger.Debug("return", zap.String("result", "altered"))

	return desc, nil
}

func (provisioner *Provisioner) release(ctx context.Context, logger *zap.Logger, release func(context.Context, lock.Owner) error, owner lock.Owner) {
	if err := release(ctx, owner); err != nil {
		logger.Warn("could not release schema lock", zap.Error(err))
	}
}

func (provisioner *Provisioner) opLogger(ctx context.Context, operation, table string) *zap.Logger {
	return log.Operation(ctx, provisioner.logger, operation).With(zap.String("table", table))
}
