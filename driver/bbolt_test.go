package driver_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/driver"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/store/bbolt"
	"github.com/jrife/cfstore/utils/uuid"
)

func TestBBoltBackend(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(os.TempDir(), fmt.Sprintf("cfstore-%s.db", uuid.MustUUID()))
	defer os.Remove(path)

	c := config(nil)
	c.Plugin = bbolt.DriverName
	c.PluginOptions = store.PluginOptions{"path": path}
	d, err := driver.Open(ctx, c)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer d.Close()

	fill(t, d, "users", 300)

	if err := d.Restart(ctx, d.Generation()); err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	cursor, err := d.Scan(ctx, "users", constraint.New(key(100), key(199)), 0, nil)

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	defer cursor.Close()

	if diff := cmp.Diff(expectedKeys(100, 200), drain(t, cursor)); diff != "" {
		t.Fatalf(diff)
	}

	value, ok, err := d.GetCell(ctx, "users", key(42), "f", "q")

	if err != nil {
		t.Fatalf("expected err to be nil, got %#v", err)
	}

	if !ok {
		t.Fatalf("expected cell to be found")
	}

	if diff := cmp.Diff("42", string(value)); diff != "" {
		t.Fatalf(diff)
	}
}
