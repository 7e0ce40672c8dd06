package store

import (
	"sort"
)

// Bloom filter types
const (
	BloomNone   = "NONE"
	BloomRow    = "ROW"
	BloomRowCol = "ROWCOL"
)

// CompressionNone disables compression
const CompressionNone = "none"

// FamilyDescriptor describes the storage properties
// of a column family
type FamilyDescriptor struct {
	Name              string `json:"name"`
	Compression       string `json:"compression"`
	InMemory          bool   `json:"inMemory"`
	TimeToLiveSeconds int    `json:"timeToLiveSeconds"`
	MaxVersions       int    `json:"maxVersions"`
	BloomFilterType   string `json:"bloomFilterType"`
	BlockCacheEnabled bool   `json:"blockCacheEnabled"`
	BlockSizeBytes    int    `json:"blockSizeBytes"`
	ReplicationScope  int    `json:"replicationScope"`
}

// DefaultFamily returns the descriptor a store uses for a family
// created without explicit properties
func DefaultFamily(name string) FamilyDescriptor {
	return FamilyDescriptor{
		Name:              name,
		Compression:       CompressionNone,
		TimeToLiveSeconds: Forever,
		MaxVersions:       1,
		BloomFilterType:   BloomRow,
		BlockCacheEnabled: true,
		BlockSizeBytes:    64 * 1024,
		ReplicationScope:  0,
	}
}

// Forever is the time to live of cells that never expire
const Forever = 2147483647

// TableDescriptor describes a table and its column families.
// Descriptors are values: change a clone, never a cached
// descriptor.
type TableDescriptor struct {
	Name     string                      `json:"name"`
	Families map[string]FamilyDescriptor `json:"families"`
	Enabled  bool                        `json:"enabled"`
}

// NewTableDescriptor returns an enabled descriptor for table name
// with the given families
func NewTableDescriptor(name string, families ...FamilyDescriptor) TableDescriptor {
	desc := TableDescriptor{Name: name, Families: make(map[string]FamilyDescriptor, len(families)), Enabled: true}

	for _, family := range families {
		desc.Families[family.Name] = family
	}

	return desc
}

// Clone returns a deep copy of the descriptor
func (desc TableDescriptor) Clone() TableDescriptor {
	clone := TableDescriptor{Name: desc.Name, Families: make(map[string]FamilyDescriptor, len(desc.Families)), Enabled: desc.Enabled}

	for name, family := range desc.Families {
		clone.Families[name] = family
	}

	return clone
}

// HasFamilies returns true if every named family exists
func (desc TableDescriptor) HasFamilies(families ...string) bool {
	for _, family := range families {
		if _, ok := desc.Families[family]; !ok {
			return false
		}
	}

	return true
}

// FamilyNames lists the families of the table in
// ascending order
func (desc TableDescriptor) FamilyNames() []string {
	names := make([]string, 0, len(desc.Families))

	for name := range desc.Families {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Equal returns true if both descriptors describe the same
// table, families and state
func (desc TableDescriptor) Equal(other TableDescriptor) bool {
	if desc.Name != other.Name || desc.Enabled != other.Enabled || len(desc.Families) != len(other.Families) {
		return false
	}

	for name, family := range desc.Families {
		if o, ok := other.Families[name]; !ok || o != family {
			return false
		}
	}

	return true
}
