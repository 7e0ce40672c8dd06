package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jrife/cfstore/store"
)

const (
	// DriverName is the name of the memory plugin
	DriverName = "memory"
)

// Plugins returns the plugins this package provides
func Plugins() []store.Plugin {
	return []store.Plugin{
		&Plugin{},
	}
}

var (
	clustersMu sync.Mutex
	clusters   = map[string]*Cluster{}
)

// Plugin opens connections to in-memory clusters. The "cluster"
// option is either a *Cluster or the name of a cluster shared by
// every connection opened with that name.
type Plugin struct {
}

// Name implements store.Plugin.Name
func (plugin *Plugin) Name() string {
	return DriverName
}

// Open implements store.Plugin.Open
func (plugin *Plugin) Open(ctx context.Context, options store.PluginOptions) (store.Conn, error) {
	switch c := options["cluster"].(type) {
	case *Cluster:
		return c.Connect(), nil
	case string:
		return named(c).Connect(), nil
	case nil:
		return nil, fmt.Errorf("\"cluster\" is required")
	default:
		return nil, fmt.Errorf("\"cluster\" must be a string or a *memory.Cluster")
	}
}

// NewTempConn implements store.Plugin.NewTempConn. The cluster
// behind the connection is not shared and goes away with it.
func (plugin *Plugin) NewTempConn() (store.Conn, error) {
	return newCluster().Connect(), nil
}

// DropCluster forgets the named cluster. Connections already open
// keep working. The next connection opened with that name gets a
// fresh, empty cluster.
func DropCluster(name string) {
	clustersMu.Lock()
	defer clustersMu.Unlock()

	delete(clusters, name)
}

func newCluster() *Cluster {
	return NewCluster("gz", "snappy", "lz4")
}

func named(name string) *Cluster {
	clustersMu.Lock()
	defer clustersMu.Unlock()

	cluster, ok := clusters[name]

	if !ok {
		cluster = newCluster()
		clusters[name] = cluster
	}

	return cluster
}
