// Package schema resolves the storage properties a column family
// should have. Every property can be given at three levels: for one
// family, for every family of a table (the class level) and as a
// store-wide default. Levels are consulted in that order and a value
// only counts as given if it is valid for its property.
//
// Independently of its value, each property has a force flag. A
// property of a family that already exists is only altered when its
// force flag resolves to true. New families always get every given
// property.
package schema

import (
	"fmt"
	"strings"

	"github.com/jrife/cfstore/store"
)

// Property names
const (
	PropCompression       = "compression"
	PropInMemory          = "inMemory"
	PropTimeToLive        = "timeToLiveSeconds"
	PropMaxVersions       = "maxVersions"
	PropBloomFilterType   = "bloomFilterType"
	PropBlockCacheEnabled = "blockCacheEnabled"
	PropBlockSize         = "blockSizeBytes"
	PropReplicationScope  = "replicationScope"
)

// CompressionChainSeparator separates the codecs of a fallback chain
// such as "lzo-or-gz"
const CompressionChainSeparator = "-or-"

// Properties holds storage properties. A nil field is not set.
type Properties struct {
	Compression       *string `yaml:"compression,omitempty"`
	InMemory          *bool   `yaml:"inMemory,omitempty"`
	TimeToLiveSeconds *int    `yaml:"timeToLiveSeconds,omitempty"`
	MaxVersions       *int    `yaml:"maxVersions,omitempty"`
	BloomFilterType   *string `yaml:"bloomFilterType,omitempty"`
	BlockCacheEnabled *bool   `yaml:"blockCacheEnabled,omitempty"`
	BlockSizeBytes    *int    `yaml:"blockSizeBytes,omitempty"`
	ReplicationScope  *int    `yaml:"replicationScope,omitempty"`
}

// ForceFlags holds one tri-state flag per property. nil is unset.
type ForceFlags struct {
	Compression       *bool `yaml:"forceCompression,omitempty"`
	InMemory          *bool `yaml:"forceInMemory,omitempty"`
	TimeToLive        *bool `yaml:"forceTimeToLive,omitempty"`
	MaxVersions       *bool `yaml:"forceMaxVersions,omitempty"`
	BloomFilterType   *bool `yaml:"forceBloomFilterType,omitempty"`
	BlockCacheEnabled *bool `yaml:"forceBlockCacheEnabled,omitempty"`
	BlockSize         *bool `yaml:"forceBlockSize,omitempty"`
	ReplicationScope  *bool `yaml:"forceReplicationScope,omitempty"`
}

// Options are the properties and force flags given at one level
type Options struct {
	Properties `yaml:",inline"`
	Force      ForceFlags `yaml:",inline"`
}

// String returns a pointer to s
func String(s string) *string { return &s }

// Bool returns a pointer to b
func Bool(b bool) *bool { return &b }

// Int returns a pointer to i
func Int(i int) *int { return &i }

func validString(s *string) bool {
	return s != nil && *s != ""
}

func validBool(b *bool) bool {
	return b != nil
}

func positive(i *int) bool {
	return i != nil && *i > 0
}

func validBloom(s *string) bool {
	if s == nil {
		return false
	}

	switch strings.ToUpper(*s) {
	case store.BloomNone, store.BloomRow, store.BloomRowCol:
		return true
	}

	return false
}

func validScope(i *int) bool {
	return i != nil && (*i == 0 || *i == 1)
}

// Resolve merges options from the most specific level to the least
// specific one. For each property the first valid value wins and for
// each force flag the first set flag wins.
func Resolve(levels ...Options) Desired {
	var desired Desired

	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]

		if validString(level.Compression) {
			desired.Properties.Compression = level.Compression
		}

		if validBool(level.InMemory) {
			desired.Properties.InMemory = level.InMemory
		}

		if positive(level.TimeToLiveSeconds) {
			desired.Properties.TimeToLiveSeconds = level.TimeToLiveSeconds
		}

		if positive(level.MaxVersions) {
			desired.Properties.MaxVersions = level.MaxVersions
		}

		if validBloom(level.BloomFilterType) {
			desired.Properties.BloomFilterType = String(strings.ToUpper(*level.BloomFilterType))
		}

		if validBool(level.BlockCacheEnabled) {
			desired.Properties.BlockCacheEnabled = level.BlockCacheEnabled
		}

		if positive(level.BlockSizeBytes) {
			desired.Properties.BlockSizeBytes = level.BlockSizeBytes
		}

		if validScope(level.ReplicationScope) {
			desired.Properties.ReplicationScope = level.ReplicationScope
		}

		desired.Force = overrideFlags(desired.Force, level.Force)
	}

	return desired
}

func overrideFlags(base, override ForceFlags) ForceFlags {
	pick := func(b, o *bool) *bool {
		if o != nil {
			return o
		}

		return b
	}

	return ForceFlags{
		Compression:       pick(base.Compression, override.Compression),
		InMemory:          pick(base.InMemory, override.InMemory),
		TimeToLive:        pick(base.TimeToLive, override.TimeToLive),
		MaxVersions:       pick(base.MaxVersions, override.MaxVersions),
		BloomFilterType:   pick(base.BloomFilterType, override.BloomFilterType),
		BlockCacheEnabled: pick(base.BlockCacheEnabled, override.BlockCacheEnabled),
		BlockSize:         pick(base.BlockSize, override.BlockSize),
		ReplicationScope:  pick(base.ReplicationScope, override.ReplicationScope),
	}
}

// Desired is the resolved set of properties a family should have
type Desired struct {
	Properties Properties
	Force      ForceFlags
}

// Codec picks the compression codec for the desired properties from
// the codecs a store supports. Chains like "lzo-or-gz" pick their
// first supported codec.
func (desired Desired) Codec(supported []string) (string, error) {
	if desired.Properties.Compression == nil {
		return "", nil
	}

	chain := strings.Split(*desired.Properties.Compression, CompressionChainSeparator)

	for _, codec := range chain {
		for _, s := range supported {
			if strings.EqualFold(codec, s) {
				return s, nil
			}
		}
	}

	return "", fmt.Errorf("none of %q is supported by the store: %w", chain, store.ErrUnsupportedCompression)
}

// Descriptor returns the descriptor of a new family named name.
// Properties that are not set keep the store defaults.
func (desired Desired) Descriptor(name string, supported []string) (store.FamilyDescriptor, error) {
	return desired.apply(store.DefaultFamily(name), supported, true)
}

// Alter returns actual with every forced property replaced by its
// desired value and the names of the properties that changed.
func (desired Desired) Alter(actual store.FamilyDescriptor, supported []string) (store.FamilyDescriptor, []string, error) {
	altered, err := desired.apply(actual, supported, false)

	if err != nil {
		return actual, nil, err
	}

	return altered, diff(actual, altered), nil
}

func (desired Desired) apply(family store.FamilyDescriptor, supported []string, all bool) (store.FamilyDescriptor, error) {
	p := desired.Properties
	f := desired.Force
	use := func(flag *bool) bool {
		return all || (flag != nil && *flag)
	}

	if p.Compression != nil && use(f.Compression) {
		codec, err := desired.Codec(supported)

		if err != nil {
			return family, err
		}

		family.Compression = codec
	}

	if p.InMemory != nil && use(f.InMemory) {
		family.InMemory = *p.InMemory
	}

	if p.TimeToLiveSeconds != nil && use(f.TimeToLive) {
		family.TimeToLiveSeconds = *p.TimeToLiveSeconds
	}

	if p.MaxVersions != nil && use(f.MaxVersions) {
		family.MaxVersions = *p.MaxVersions
	}

	if p.BloomFilterType != nil && use(f.BloomFilterType) {
		family.BloomFilterType = *p.BloomFilterType
	}

	if p.BlockCacheEnabled != nil && use(f.BlockCacheEnabled) {
		family.BlockCacheEnabled = *p.BlockCacheEnabled
	}

	if p.BlockSizeBytes != nil && use(f.BlockSize) {
		family.BlockSizeBytes = *p.BlockSizeBytes
	}

	if p.ReplicationScope != nil && use(f.ReplicationScope) {
		family.ReplicationScope = *p.ReplicationScope
	}

	return family, nil
}

func diff(a, b store.FamilyDescriptor) []string {
	var changed []string

	if a.Compression != b.Compression {
		changed = append(changed, PropCompression)
	}

	if a.InMemory != b.InMemory {
		changed = append(changed, PropInMemory)
	}

	if a.TimeToLiveSeconds != b.TimeToLiveSeconds {
		changed = append(changed, PropTimeToLive)
	}

	if a.MaxVersions != b.MaxVersions {
		changed = append(changed, PropMaxVersions)
	}

	if a.BloomFilterType != b.BloomFilterType {
		changed = append(changed, PropBloomFilterType)
	}

	if a.BlockCacheEnabled != b.BlockCacheEnabled {
		changed = append(changed, PropBlockCacheEnabled)
	}

	if a.BlockSizeBytes != b.BlockSizeBytes {
		changed = append(changed, PropBlockSize)
	}

	if a.ReplicationScope != b.ReplicationScope {
		changed = append(changed, PropReplicationScope)
	}

	return changed
}
