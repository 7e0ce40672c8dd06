// Package bbolt implements a single-host backing store on top of
// bbolt. Table descriptors live in a schema bucket. Cells of a table
// live in one bucket keyed by the order-preserving encoding of the
// row key, followed by the encoded family name and the qualifier, so
// a cursor walks rows in key order.
package bbolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/jrife/cfstore/keys"
	"github.com/jrife/cfstore/keys/encoding"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/utils/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// DriverName is the name of the bbolt plugin
	DriverName = "bbolt"
)

var (
	schemaBucket = []byte("schema")
	dataBucket   = []byte("data")
	compressions = []string{store.CompressionNone, "gz", "snappy"}
)

// Plugins returns the plugins this package provides
func Plugins() []store.Plugin {
	return []store.Plugin{
		&BBoltPlugin{},
	}
}

// BBoltPlugin opens bbolt backed stores
type BBoltPlugin struct {
}

// Name implements store.Plugin.Name
func (plugin *BBoltPlugin) Name() string {
	return DriverName
}

// Open implements store.Plugin.Open
func (plugin *BBoltPlugin) Open(ctx context.Context, options store.PluginOptions) (store.Conn, error) {
	var config BBoltStoreConfig

	if path, ok := options["path"]; !ok {
		return nil, fmt.Errorf("\"path\" is required")
	} else if pathString, ok := path.(string); !ok {
		return nil, fmt.Errorf("\"path\" must be a string")
	} else {
		config.Path = pathString
	}

	return New(config)
}

// NewTempConn implements store.Plugin.NewTempConn
func (plugin *BBoltPlugin) NewTempConn() (store.Conn, error) {
	return plugin.Open(context.Background(), store.PluginOptions{
		"path": fmt.Sprintf("%s/cfstore-bbolt-%s", os.TempDir(), uuid.MustUUID()),
	})
}

// BBoltStoreConfig configures a bbolt store
type BBoltStoreConfig struct {
	Path string
}

var _ store.Conn = (*BBoltStore)(nil)

// BBoltStore is a connection to a bbolt store
type BBoltStore struct {
	db        *bolt.DB
	closeOnce sync.Once
}

// New opens the bbolt database at config.Path, creating it if needed
func New(config BBoltStoreConfig) (*BBoltStore, error) {
	db, err := bolt.Open(config.Path, 0666, nil)

	if err != nil {
		return nil, fmt.Errorf("Could not open bbolt store at %s: %s: %w", config.Path, err.Error(), store.ErrConnectionLost)
	}

	if err := db.Update(func(txn *bolt.Tx) error {
		if _, err := txn.CreateBucketIfNotExists(schemaBucket); err != nil {
			return err
		}

		_, err := txn.CreateBucketIfNotExists(dataBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("Could not ensure root buckets exist: %s", err.Error())
	}

	return &BBoltStore{db: db}, nil
}

// Path returns the path of the database file
func (s *BBoltStore) Path() string {
	return s.db.Path()
}

// Admin implements store.Conn.Admin
func (s *BBoltStore) Admin() store.Admin {
	return &admin{db: s.db}
}

// Table implements store.Conn.Table
func (s *BBoltStore) Table(name string) store.Table {
	return &table{db: s.db, name: name}
}

// Close implements store.Conn.Close
func (s *BBoltStore) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.db.Close()
	})

	return err
}

// Delete closes the store then deletes its file
func (s *BBoltStore) Delete() error {
	path := s.db.Path()

	if err := s.Close(); err != nil {
		return fmt.Errorf("Could not close store: %s", err.Error())
	}

	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("Could not remove path %s: %s", path, err.Error())
	}

	return nil
}

func wrapError(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return fmt.Errorf("%s: %w", err.Error(), store.ErrConnectionLost)
	}

	return err
}

func readDescriptor(txn *bolt.Tx, name string) (store.TableDescriptor, error) {
	raw := txn.Bucket(schemaBucket).Get([]byte(name))

	if raw == nil {
		return store.TableDescriptor{}, fmt.Errorf("%s: %w", name, store.ErrTableNotFound)
	}

	var desc store.TableDescriptor

	if err := json.Unmarshal(raw, &desc); err != nil {
		return store.TableDescriptor{}, fmt.Errorf("Could not decode descriptor of %s: %s", name, err.Error())
	}

	if desc.Families == nil {
		desc.Families = map[string]store.FamilyDescriptor{}
	}

	return desc, nil
}

func writeDescriptor(txn *bolt.Tx, desc store.TableDescriptor) error {
	raw, err := json.Marshal(desc)

	if err != nil {
		return fmt.Errorf("Could not encode descriptor of %s: %s", desc.Name, err.Error())
	}

	return txn.Bucket(schemaBucket).Put([]byte(desc.Name), raw)
}

// serving returns the descriptor and data bucket of an enabled table
func serving(txn *bolt.Tx, name string, families []string) (store.TableDescriptor, *bolt.Bucket, error) {
	desc, err := readDescriptor(txn, name)

	if err != nil {
		return desc, nil, err
	}

	if !desc.Enabled {
		return desc, nil, fmt.Errorf("%s: %w", name, store.ErrTableDisabled)
	}

	for _, family := range families {
		if _, ok := desc.Families[family]; !ok {
			return desc, nil, fmt.Errorf("%s:%s: %w", name, family, store.ErrFamilyNotFound)
		}
	}

	bucket := txn.Bucket(dataBucket).Bucket([]byte(name))

	if bucket == nil {
		return desc, nil, fmt.Errorf("%s has no data bucket: %w", name, store.ErrTableNotFound)
	}

	return desc, bucket, nil
}

func rowPrefix(key keys.Key) []byte {
	return encoding.EncodeBytes(nil, key, encoding.Ascending)
}

func cellKey(key keys.Key, family, qualifier string) []byte {
	k := encoding.EncodeBytes(nil, key, encoding.Ascending)
	k = encoding.EncodeBytes(k, []byte(family), encoding.Ascending)

	return append(k, qualifier...)
}

func splitCellKey(k []byte) (keys.Key, string, string, error) {
	rest, key, err := encoding.DecodeBytes(k, encoding.Ascending)

	if err != nil {
		return nil, "", "", err
	}

	rest, family, err := encoding.DecodeBytes(rest, encoding.Ascending)

	if err != nil {
		return nil, "", "", err
	}

	return keys.Key(key), string(family), string(rest), nil
}
