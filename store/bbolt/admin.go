package bbolt

import (
	"context"
	"fmt"

	"github.com/jrife/cfstore/store"
	bolt "go.etcd.io/bbolt"
)

var _ store.Admin = (*admin)(nil)

type admin struct {
	db *bolt.DB
}

func (a *admin) DescribeTable(ctx context.Context, name string) (store.TableDescriptor, error) {
	var desc store.TableDescriptor

	err := a.db.View(func(txn *bolt.Tx) error {
		var err error

		desc, err = readDescriptor(txn, name)

		return err
	})

	return desc, wrapError(err)
}

func (a *admin) CreateTable(ctx context.Context, desc store.TableDescriptor) error {
	for _, family := range desc.Families {
		if err := checkCompression(family); err != nil {
			return err
		}
	}

	return wrapError(a.db.Update(func(txn *bolt.Tx) error {
		if txn.Bucket(schemaBucket).Get([]byte(desc.Name)) != nil {
			return fmt.Errorf("%s: %w", desc.Name, store.ErrTableExists)
		}

		if _, err := txn.Bucket(dataBucket).CreateBucketIfNotExists([]byte(desc.Name)); err != nil {
			return fmt.Errorf("Could not create data bucket for %s: %s", desc.Name, err.Error())
		}

		desc = desc.Clone()
		desc.Enabled = true

		return writeDescriptor(txn, desc)
	}))
}

func (a *admin) DeleteTable(ctx context.Context, name string) error {
	return wrapError(a.db.Update(func(txn *bolt.Tx) error {
		if _, err := readDescriptor(txn, name); err != nil {
			return err
		}

		if err := txn.Bucket(dataBucket).DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}

		return txn.Bucket(schemaBucket).Delete([]byte(name))
	}))
}

func (a *admin) DisableTable(ctx context.Context, name string) error {
	return a.update(name, func(desc *store.TableDescriptor) error {
		desc.Enabled = false

		return nil
	})
}

func (a *admin) EnableTable(ctx context.Context, name string) error {
	return a.update(name, func(desc *store.TableDescriptor) error {
		desc.Enabled = true

		return nil
	})
}

func (a *admin) AddFamily(ctx context.Context, table string, family store.FamilyDescriptor) error {
	if err := checkCompression(family); err != nil {
		return err
	}

	return a.update(table, func(desc *store.TableDescriptor) error {
		if _, ok := desc.Families[family.Name]; ok {
			return fmt.Errorf("%s:%s: %w", table, family.Name, store.ErrFamilyExists)
		}

		desc.Families[family.Name] = family

		return nil
	})
}

func (a *admin) ModifyFamily(ctx context.Context, table string, family store.FamilyDescriptor) error {
	if err := checkCompression(family); err != nil {
		return err
	}

	return a.update(table, func(desc *store.TableDescriptor) error {
		if _, ok := desc.Families[family.Name]; !ok {
			return fmt.Errorf("%s:%s: %w", table, family.Name, store.ErrFamilyNotFound)
		}

		desc.Families[family.Name] = family

		return nil
	})
}

func (a *admin) Compressions() []string {
	return append([]string{}, compressions...)
}

func (a *admin) update(name string, fn func(desc *store.TableDescriptor) error) error {
	return wrapError(a.db.Update(func(txn *bolt.Tx) error {
		desc, err := readDescriptor(txn, name)

		if err != nil {
			return err
		}

		if err := fn(&desc); err != nil {
			return err
		}

		return writeDescriptor(txn, desc)
	}))
}

func checkCompression(family store.FamilyDescriptor) error {
	if family.Compression == "" {
		return nil
	}

	for _, c := range compressions {
		if c == family.Compression {
			return nil
		}
	}

	return fmt.Errorf("%s: %w", family.Compression, store.ErrUnsupportedCompression)
}
