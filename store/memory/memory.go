// Package memory implements an in-memory backing store. A Cluster
// plays the role of one shared store instance. Every Conn opened
// against it plays the role of one client process connected to it.
// Clusters count the calls they receive and can inject faults, which
// makes them the test harness for the driver.
package memory

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/store"
)

// Operation names reported to fault injectors and call counters
const (
	OpDescribe  = "describe"
	OpCreate    = "create"
	OpDelete    = "deleteTable"
	OpDisable   = "disable"
	OpEnable    = "enable"
	OpAddFamily = "addFamily"
	OpModify    = "modifyFamily"
	OpGet       = "get"
	OpMutate    = "mutate"
	OpIncrement = "increment"
	OpDeleteRow = "deleteRow"
	OpScan      = "scan"
	OpScanNext  = "scanNext"
)

// FaultInjector is consulted before every operation. A non-nil
// return value fails the operation with that error. key is the
// row key involved, if any. For OpScanNext it is the key of the
// row about to be returned.
type FaultInjector func(op string, table string, key keys.Key) error

// Cluster is an in-memory store instance shared by many connections
type Cluster struct {
	mu           sync.Mutex
	tables       map[string]*table
	compressions []string
	calls        map[string]int
	injector     FaultInjector
	lag          int
	scanEpoch    int
	conns        []*conn
}

// NewCluster creates an empty cluster that supports the given
// compression codecs in addition to "none"
func NewCluster(compressions ...string) *Cluster {
	return &Cluster{
		tables:       make(map[string]*table),
		compressions: append([]string{store.CompressionNone}, compressions...),
		calls:        make(map[string]int),
	}
}

// Connect opens a new connection to the cluster
func (cluster *Cluster) Connect() store.Conn {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	c := &conn{cluster: cluster}
	cluster.conns = append(cluster.conns, c)

	return c
}

// BreakConnections breaks every connection opened so far, as if the
// store dropped its clients. Later connections work.
func (cluster *Cluster) BreakConnections() {
	cluster.mu.Lock()
	conns := cluster.conns
	cluster.conns = nil
	cluster.mu.Unlock()

	for _, c := range conns {
		Break(c)
	}
}

// SetFaultInjector installs an injector. nil removes it.
func (cluster *Cluster) SetFaultInjector(injector FaultInjector) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	cluster.injector = injector
}

// SetAlterationLag makes family modifications visible through
// DescribeTable only after n further DescribeTable calls
func (cluster *Cluster) SetAlterationLag(n int) {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	cluster.lag = n
}

// ExpireScanners makes every open scanner fail with
// store.ErrScannerExpired
func (cluster *Cluster) ExpireScanners() {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	cluster.scanEpoch++
}

// Calls returns the number of calls received for op
func (cluster *Cluster) Calls(op string) int {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	return cluster.calls[op]
}

// TotalCalls returns the number of calls received for all operations
func (cluster *Cluster) TotalCalls() int {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	total := 0

	for _, n := range cluster.calls {
		total += n
	}

	return total
}

// ResetCalls zeroes all call counters
func (cluster *Cluster) ResetCalls() {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	cluster.calls = make(map[string]int)
}

// Tables lists the names of all tables in ascending order
func (cluster *Cluster) Tables() []string {
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	names := make([]string, 0, len(cluster.tables))

	for name := range cluster.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// enter records a call and runs the fault injector. It must be
// called with cluster.mu held.
func (cluster *Cluster) enter(op string, table string, key keys.Key) error {
	cluster.calls[op]++

	if cluster.injector == nil {
		return nil
	}

	return cluster.injector(op, table, key)
}

type table struct {
	desc    store.TableDescriptor
	pending []store.FamilyDescriptor
	wait    int
	rows    *treemap.Map
}

func newTable(desc store.TableDescriptor) *table {
	return &table{
		desc: desc.Clone(),
		rows: treemap.NewWith(func(a, b interface{}) int {
			return bytes.Compare(a.(keys.Key), b.(keys.Key))
		}),
	}
}

// serving returns the table if it exists and is enabled
func (cluster *Cluster) serving(name string) (*table, error) {
	t, ok := cluster.tables[name]

	if !ok {
		return nil, fmt.Errorf("%s: %w", name, store.ErrTableNotFound)
	}

	if !t.desc.Enabled {
		return nil, fmt.Errorf("%s: %w", name, store.ErrTableDisabled)
	}

	return t, nil
}

func (t *table) checkFamilies(families []string) error {
	for _, family := range families {
		if _, ok := t.desc.Families[family]; !ok {
			return fmt.Errorf("%s:%s: %w", t.desc.Name, family, store.ErrFamilyNotFound)
		}
	}

	return nil
}

type row map[string]map[string][]byte

func (r row) copy(families []string, keysOnly bool) map[string]map[string][]byte {
	cp := make(map[string]map[string][]byte)

	for family, columns := range r {
		if len(families) > 0 && !contains(families, family) {
			continue
		}

		if len(columns) == 0 {
			continue
		}

		c := make(map[string][]byte, len(columns))

		for qualifier, value := range columns {
			if keysOnly {
				c[qualifier] = nil

				continue
			}

			c[qualifier] = append([]byte{}, value...)
		}

		cp[family] = c
	}

	return cp
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}

	return false
}

var _ store.Conn = (*conn)(nil)

type conn struct {
	cluster *Cluster
	mu      sync.Mutex
	closed  bool
	broken  bool
}

// Break simulates a dropped connection. Every later call through
// c fails with store.ErrConnectionLost.
func Break(c store.Conn) {
	if mc, ok := c.(*conn); ok {
		mc.mu.Lock()
		mc.broken = true
		mc.mu.Unlock()
	}
}

func (c *conn) check() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.broken {
		return store.ErrConnectionLost
	}

	return nil
}

func (c *conn) Admin() store.Admin {
	return &admin{conn: c}
}

func (c *conn) Table(name string) store.Table {
	return &tableHandle{conn: c, name: name}
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}
