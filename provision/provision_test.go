package provision_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/cfstore/lock"
	"github.com/jrife/cfstore/lock/local"
	"github.com/jrife/cfstore/provision"
	"github.com/jrife/cfstore/schema"
	"github.com/jrife/cfstore/schema/cache"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/store/memory"
	"go.uber.org/zap"
)

// process bundles what one client process owns: a connection, a
// schema cache and a lock manager
type process struct {
	conn        store.Conn
	cache       *cache.SchemaCache
	provisioner *provision.Provisioner
}

type harness struct {
	cluster     *memory.Cluster
	coordinator *local.Coordinator
}

func newHarness() *harness {
	return &harness{cluster: memory.NewCluster("gz", "snappy"), coordinator: local.New()}
}

func (h *harness) process(config schema.Config, lockTimeout time.Duration) *process {
	logger, _ := zap.NewDevelopment()
	p := &process{conn: h.cluster.Connect(), cache: cache.New()}
	p.provisioner = provision.New(provision.ProvisionerConfig{
		Conn:         func() store.Conn { return p.conn },
		Cache:        p.cache,
		Locks:        lock.NewManager(lock.ManagerConfig{Coordinator: h.coordinator, Timeout: lockTimeout, Logger: logger}),
		Schema:       config,
		PollInterval: time.Millisecond,
		PollAttempts: 20,
		Logger:       logger,
	})

	return p
}

func forced(compression string) schema.Config {
	return schema.Config{
		Defaults: schema.Options{
			Properties: schema.Properties{Compression: schema.String(compression)},
			Force:      schema.ForceFlags{Compression: schema.Bool(true)},
		},
	}
}

func TestEnsureCreatesOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	results := make([]store.TableDescriptor, 10)
	errs := make([]error, 10)

	var wg sync.WaitGroup

	for i := range results {
		p := h.process(schema.Config{}, 5*time.Second)
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			results[i], errs[i] = p.provisioner.Ensure(ctx, "users", []string{"a", "b"})
		}(i)
	}

	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if diff := cmp.Diff(results[0], results[i]); diff != "" {
			t.Fatalf(diff)
		}
	}

	if diff := cmp.Diff(1, h.cluster.Calls(memory.OpCreate)); diff != "" {
		t.Fatalf(diff)
	}

	if diff := cmp.Diff([]string{"a", "b"}, results[0].FamilyNames()); diff != "" {
		t.Fatalf(diff)
	}
}

func TestEnsureCreateRaceLosersDoNotAlter(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	logger, _ := zap.NewDevelopment()
	gate := lock.NewManager(lock.ManagerConfig{Coordinator: h.coordinator, Logger: logger}).Lock("users")
	gateOwner := lock.NewOwner()

	// Hold the table back until every process has queued its shared
	// request so that all of them see the table missing
	if err := gate.AcquireExclusive(ctx, gateOwner); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	processes := make([]*process, 8)

	for i := range processes {
		codec := "gz"

		if i%2 == 1 {
			codec = "snappy"
		}

		processes[i] = h.process(forced(codec), 5*time.Second)
	}

	errs := make([]error, len(processes))

	var wg sync.WaitGroup

	for i, p := range processes {
		wg.Add(1)

		go func(i int, p *process) {
			defer wg.Done()

			_, errs[i] = p.provisioner.Ensure(ctx, "users", []string{"a"})
		}(i, p)
	}

	deadline := time.Now().Add(5 * time.Second)

	for h.coordinator.Waiting(gate.Key()) < len(processes) {
		if time.Now().After(deadline) {
			t.Fatalf("processes did not queue for the schema lock")
		}

		time.Sleep(time.Millisecond)
	}

	if err := gate.ReleaseExclusive(ctx, gateOwner); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	for op, expected := range map[string]int{memory.OpCreate: 1, memory.OpModify: 0, memory.OpDisable: 0} {
		if diff := cmp.Diff(expected, h.cluster.Calls(op)); diff != "" {
			t.Fatalf("%s: %s", op, diff)
		}
	}
}

func TestEnsureCached(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	p := h.process(schema.Config{}, time.Second)

	if _, err := p.provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	h.cluster.ResetCalls()

	if _, err := p.provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff(0, h.cluster.TotalCalls()); diff != "" {
		t.Fatalf(diff)
	}
}

func TestEnsureAddsMissingFamily(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	p1 := h.process(schema.Config{}, time.Second)
	p2 := h.process(schema.Config{}, time.Second)

	if _, err := p1.provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	desc, err := p2.provisioner.Ensure(ctx, "users", []string{"a", "b"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]string{"a", "b"}, desc.FamilyNames()); diff != "" {
		t.Fatalf(diff)
	}

	if !desc.Enabled {
		t.Fatalf("expected table to be enabled")
	}

	if diff := cmp.Diff(1, h.cluster.Calls(memory.OpAddFamily)); diff != "" {
		t.Fatalf(diff)
	}

	if diff := cmp.Diff(store.DefaultFamily("b"), desc.Families["b"]); diff != "" {
		t.Fatalf(diff)
	}
}

func TestEnsureConfiguredFamilies(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	config := schema.Config{
		Tables: map[string]schema.TableOptions{
			"users": {
				Families: map[string]schema.Options{
					"meta": {Properties: schema.Properties{MaxVersions: schema.Int(3)}},
				},
			},
		},
	}
	p := h.process(config, time.Second)
	desc, err := p.provisioner.Ensure(ctx, "users", []string{"a"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff([]string{"a", "meta"}, desc.FamilyNames()); diff != "" {
		t.Fatalf(diff)
	}

	if diff := cmp.Diff(3, desc.Families["meta"].MaxVersions); diff != "" {
		t.Fatalf(diff)
	}
}

func TestAlterationConvergence(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.process(schema.Config{}, time.Second).provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	p1 := h.process(forced("gz"), 5*time.Second)
	p2 := h.process(forced("snappy"), 5*time.Second)
	h.cluster.ResetCalls()

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i, p := range []*process{p1, p2} {
		wg.Add(1)

		go func(i int, p *process) {
			defer wg.Done()

			_, errs[i] = p.provisioner.Ensure(ctx, "users", []string{"a"})
		}(i, p)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}
	}

	if modifications := h.cluster.Calls(memory.OpModify); modifications < 1 || modifications > 2 {
		t.Fatalf("expected one or two modifications, got %d", modifications)
	}

	desc, err := p1.conn.Admin().DescribeTable(ctx, "users")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !desc.Enabled {
		t.Fatalf("expected table to be enabled")
	}

	// A third process that wants what the table already has changes
	// nothing
	h.cluster.ResetCalls()
	p3 := h.process(forced(desc.Families["a"].Compression), time.Second)

	if _, err := p3.provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	for _, op := range []string{memory.OpModify, memory.OpDisable, memory.OpEnable, memory.OpAddFamily} {
		if diff := cmp.Diff(0, h.cluster.Calls(op)); diff != "" {
			t.Fatalf("%s: %s", op, diff)
		}
	}
}

func TestAlterationLag(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.process(schema.Config{}, time.Second).provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	h.cluster.SetAlterationLag(5)
	h.cluster.ResetCalls()

	desc, err := h.process(forced("gz"), time.Second).provisioner.Ensure(ctx, "users", []string{"a"})

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if diff := cmp.Diff("gz", desc.Families["a"].Compression); diff != "" {
		t.Fatalf(diff)
	}

	if describes := h.cluster.Calls(memory.OpDescribe); describes < 5 {
		t.Fatalf("expected at least 5 describes, got %d", describes)
	}
}

func TestAlterationNotConverged(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.process(schema.Config{}, time.Second).provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	h.cluster.SetAlterationLag(1000)
	p := h.process(forced("gz"), time.Second)

	if _, err := p.provisioner.Ensure(ctx, "users", []string{"a"}); !errors.Is(err, provision.ErrNotConverged) {
		t.Fatalf("expected err to be ErrNotConverged, got %#v", err)
	}

	desc, err := p.conn.Admin().DescribeTable(ctx, "users")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !desc.Enabled {
		t.Fatalf("expected table to be enabled again")
	}

	if _, ok := p.cache.Lookup("users"); ok {
		t.Fatalf("expected nothing to be cached")
	}
}

func TestEnsureEnabled(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	p := h.process(schema.Config{}, time.Second)

	if _, err := p.provisioner.Ensure(ctx, "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if err := p.conn.Admin().DisableTable(ctx, "users"); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	h.cluster.ResetCalls()

	for i := 0; i < 2; i++ {
		desc, err := p.provisioner.EnsureEnabled(ctx, "users")

		if err != nil {
			t.Fatalf("expected err to be nil, got %#v", err)
		}

		if !desc.Enabled {
			t.Fatalf("expected table to be enabled")
		}
	}

	if diff := cmp.Diff(1, h.cluster.Calls(memory.OpEnable)); diff != "" {
		t.Fatalf(diff)
	}
}

func TestUnsupportedCompression(t *testing.T) {
	h := newHarness()
	p := h.process(forced("lzo"), time.Second)

	if _, err := p.provisioner.Ensure(context.Background(), "users", []string{"a"}); !errors.Is(err, store.ErrUnsupportedCompression) {
		t.Fatalf("expected err to be ErrUnsupportedCompression, got %#v", err)
	}

	if diff := cmp.Diff([]string{}, h.cluster.Tables()); diff != "" {
		t.Fatalf(diff)
	}

	if _, err := h.process(forced("lzo-or-gz"), time.Second).provisioner.Ensure(context.Background(), "users", []string{"a"}); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}
}

func TestLockTimeout(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	holder := lock.NewManager(lock.ManagerConfig{Coordinator: h.coordinator})
	owner := lock.NewOwner()

	if err := holder.Lock("users").AcquireExclusive(ctx, owner); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	p := h.process(schema.Config{}, 20*time.Millisecond)

	if _, err := p.provisioner.Ensure(ctx, "users", []string{"a"}); !errors.Is(err, lock.ErrLockTimeout) {
		t.Fatalf("expected err to be ErrLockTimeout, got %#v", err)
	}

	if diff := cmp.Diff(0, h.cluster.Calls(memory.OpCreate)); diff != "" {
		t.Fatalf(diff)
	}
}
