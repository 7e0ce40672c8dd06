package driver

import (
	"errors"
	"fmt"

	"github.com/jrife/cfstore/recovery"
)

var (
	// ErrClosed is returned by a driver that was closed
	ErrClosed = errors.New("driver is closed")
	// ErrNoSuchPlugin is returned when the configured backend plugin
	// is not registered
	ErrNoSuchPlugin = errors.New("no such storage plugin")
	// ErrRestartTimeout is returned when a restart by another caller
	// did not finish in time
	ErrRestartTimeout = errors.New("timed out waiting for the driver to restart")
)

// StoreUnavailable is returned when an operation failed and could
// not be recovered. Cause is the last failure.
type StoreUnavailable struct {
	Table    string
	Op       string
	Category recovery.Category
	Cause    error
}

// Error implements error
func (err *StoreUnavailable) Error() string {
	return fmt.Sprintf("store unavailable: %s on table %s (%s): %s", err.Op, err.Table, err.Category, err.Cause)
}

// Unwrap returns the cause
func (err *StoreUnavailable) Unwrap() error {
	return err.Cause
}

func unavailable(table, op string, cause error) error {
	var su *StoreUnavailable

	if errors.As(cause, &su) {
		return cause
	}

	return &StoreUnavailable{Table: table, Op: op, Category: recovery.Classify(cause), Cause: cause}
}
