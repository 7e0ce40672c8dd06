package driver

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jrife/cfstore/lock"
	"github.com/jrife/cfstore/schema"
	"github.com/jrife/cfstore/store"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	// DefaultRestartTimeout bounds how long a caller waits for a
	// restart started by another caller
	DefaultRestartTimeout = 30 * time.Second
)

// Config configures a Driver
type Config struct {
	// Plugin names the backend plugin
	Plugin string
	// PluginOptions are passed to the plugin to open connections
	PluginOptions store.PluginOptions
	// Coordinator coordinates schema locks across processes
	Coordinator lock.Coordinator
	// Schema holds the desired family properties
	Schema schema.Config
	// LockTimeout bounds schema lock acquisitions. Zero means
	// lock.DefaultTimeout.
	LockTimeout time.Duration
	// RestartTimeout defaults to DefaultRestartTimeout
	RestartTimeout time.Duration
	// PollInterval and PollAttempts bound the wait for schema
	// alterations to become visible. Zero means the provisioner
	// defaults.
	PollInterval time.Duration
	PollAttempts int
	// Registerer receives the driver metrics. Optional.
	Registerer prometheus.Registerer
	// Logger defaults to zap.L()
	Logger *zap.Logger
}

// ID identifies the store a config connects to. Configs with the
// same ID share one driver in a Registry.
func (config Config) ID() string {
	names := make([]string, 0, len(config.PluginOptions))

	for name := range config.PluginOptions {
		names = append(names, name)
	}

	sort.Strings(names)

	var b strings.Builder

	b.WriteString(config.Plugin)

	for _, name := range names {
		switch value := config.PluginOptions[name].(type) {
		case string, bool, int, int64, uint64, float64:
			fmt.Fprintf(&b, ";%s=%v", name, value)
		default:
			// Objects are identified by their address
			fmt.Fprintf(&b, ";%s=%T@%p", name, value, value)
		}
	}

	return b.String()
}
