package memory

import (
	"context"
	"fmt"

	"github.com/jrife/cfstore/store"
)

var _ store.Admin = (*admin)(nil)

type admin struct {
	conn *conn
}

func (a *admin) DescribeTable(ctx context.Context, name string) (store.TableDescriptor, error) {
	if err := a.conn.check(); err != nil {
		return store.TableDescriptor{}, err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpDescribe, name, nil); err != nil {
		return store.TableDescriptor{}, err
	}

	t, ok := cluster.tables[name]

	if !ok {
		return store.TableDescriptor{}, fmt.Errorf("%s: %w", name, store.ErrTableNotFound)
	}

	if len(t.pending) > 0 {
		t.wait--

		if t.wait <= 0 {
			for _, family := range t.pending {
				t.desc.Families[family.Name] = family
			}

			t.pending = nil
		}
	}

	return t.desc.Clone(), nil
}

func (a *admin) CreateTable(ctx context.Context, desc store.TableDescriptor) error {
	if err := a.conn.check(); err != nil {
		return err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpCreate, desc.Name, nil); err != nil {
		return err
	}

	if _, ok := cluster.tables[desc.Name]; ok {
		return fmt.Errorf("%s: %w", desc.Name, store.ErrTableExists)
	}

	for _, family := range desc.Families {
		if err := cluster.checkCompression(family); err != nil {
			return err
		}
	}

	desc = desc.Clone()
	desc.Enabled = true
	cluster.tables[desc.Name] = newTable(desc)

	return nil
}

func (a *admin) DeleteTable(ctx context.Context, name string) error {
	if err := a.conn.check(); err != nil {
		return err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpDelete, name, nil); err != nil {
		return err
	}

	if _, ok := cluster.tables[name]; !ok {
		return fmt.Errorf("%s: %w", name, store.ErrTableNotFound)
	}

	delete(cluster.tables, name)

	return nil
}

func (a *admin) DisableTable(ctx context.Context, name string) error {
	return a.setEnabled(OpDisable, name, false)
}

func (a *admin) EnableTable(ctx context.Context, name string) error {
	return a.setEnabled(OpEnable, name, true)
}

func (a *admin) setEnabled(op string, name string, enabled bool) error {
	if err := a.conn.check(); err != nil {
		return err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(op, name, nil); err != nil {
		return err
	}

	t, ok := cluster.tables[name]

	if !ok {
		return fmt.Errorf("%s: %w", name, store.ErrTableNotFound)
	}

	t.desc.Enabled = enabled

	return nil
}

func (a *admin) AddFamily(ctx context.Context, table string, family store.FamilyDescriptor) error {
	if err := a.conn.check(); err != nil {
		return err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpAddFamily, table, nil); err != nil {
		return err
	}

	t, ok := cluster.tables[table]

	if !ok {
		return fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}

	if _, ok := t.desc.Families[family.Name]; ok {
		return fmt.Errorf("%s:%s: %w", table, family.Name, store.ErrFamilyExists)
	}

	if err := cluster.checkCompression(family); err != nil {
		return err
	}

	t.desc.Families[family.Name] = family

	return nil
}

func (a *admin) ModifyFamily(ctx context.Context, table string, family store.FamilyDescriptor) error {
	if err := a.conn.check(); err != nil {
		return err
	}

	cluster := a.conn.cluster
	cluster.mu.Lock()
	defer cluster.mu.Unlock()

	if err := cluster.enter(OpModify, table, nil); err != nil {
		return err
	}

	t, ok := cluster.tables[table]

	if !ok {
		return fmt.Errorf("%s: %w", table, store.ErrTableNotFound)
	}

	if _, ok := t.desc.Families[family.Name]; !ok {
		return fmt.Errorf("%s:%s: %w", table, family.Name, store.ErrFamilyNotFound)
	}

	if err := cluster.checkCompression(family); err != nil {
		return err
	}

	if cluster.lag > 0 {
		t.pending = append(t.pending, family)
		t.wait = cluster.lag

		return nil
	}

	t.desc.Families[family.Name] = family

	return nil
}

func (a *admin) Compressions() []string {
	return append([]string{}, a.conn.cluster.compressions...)
}

func (cluster *Cluster) checkCompression(family store.FamilyDescriptor) error {
	if family.Compression == "" || contains(cluster.compressions, family.Compression) {
		return nil
	}

	return fmt.Errorf("%s: %w", family.Compression, store.ErrUnsupportedCompression)
}
