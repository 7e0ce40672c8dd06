package driver

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry shares drivers between the users of a store. Opening the
// same config twice returns the same driver. Drivers live until
// Shutdown.
type Registry struct {
	mu      sync.Mutex
	drivers map[string]*Driver
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{drivers: make(map[string]*Driver)}
}

// Open returns the driver for config, opening it on first use
func (registry *Registry) Open(ctx context.Context, config Config) (*Driver, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	id := config.ID()

	if driver, ok := registry.drivers[id]; ok {
		return driver, nil
	}

	driver, err := Open(ctx, config)

	if err != nil {
		return nil, err
	}

	registry.drivers[id] = driver

	return driver, nil
}

// Len returns the number of open drivers
func (registry *Registry) Len() int {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	return len(registry.drivers)
}

// Shutdown closes every driver and empties the registry. It returns
// the first error encountered.
func (registry *Registry) Shutdown() error {
	registry.mu.Lock()
	drivers := registry.drivers
	registry.drivers = make(map[string]*Driver)
	registry.mu.Unlock()

	var first error

	for id, driver := range drivers {
		if err := driver.Close(); err != nil {
			driver.logger.Warn("could not close driver", zap.String("id", id), zap.Error(err))

			if first == nil {
				first = err
			}
		}
	}

	return first
}
