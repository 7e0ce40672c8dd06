package driver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jrife/cfstore/driver"
	"github.com/jrife/cfstore/store/memory"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	registry := driver.NewRegistry()
	cluster := memory.NewCluster()
	c := config(cluster)

	a, err := registry.Open(ctx, c)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	b, err := registry.Open(ctx, config(cluster))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if a != b {
		t.Fatalf("expected the same config to share a driver")
	}

	other, err := registry.Open(ctx, config(memory.NewCluster()))

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if other == a {
		t.Fatalf("expected a different store to get its own driver")
	}

	named := c
	named.PluginOptions = map[string]interface{}{"cluster": "registry-test"}
	n1, _ := registry.Open(ctx, named)
	n2, _ := registry.Open(ctx, named)

	if n1 != n2 {
		t.Fatalf("expected the same named cluster to share a driver")
	}

	if registry.Len() != 3 {
		t.Fatalf("expected 3 drivers, got %d", registry.Len())
	}

	if err := registry.Shutdown(); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if _, _, err := a.Get(ctx, "users", key(0), nil); !errors.Is(err, driver.ErrClosed) {
		t.Fatalf("expected err to be ErrClosed, got %#v", err)
	}

	if registry.Len() != 0 {
		t.Fatalf("expected registry to be empty, got %d", registry.Len())
	}
}
