package driver

import (
	"context"
	"fmt"

	"github.com/jrife/cfstore/constraint"
	"github.com/jrife/cfstore/store"
	"github.com/jrife/cfstore/utils/log"
	"github.com/jrife/cfstore/utils/stream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the number of workers of a job that does not
// say otherwise
const DefaultWorkers = 4

// Job processes every row within a constraint
type Job struct {
	Table      string
	Constraint constraint.Constraint
	// Families restricts the rows to these families. Empty means
	// all families.
	Families []string
	// Filter skips rows for which it returns false. Optional.
	Filter func(store.Row) bool
	// Limit stops the job after this many rows passed the filter.
	// Zero means no limit.
	Limit int
	// Workers is the number of rows processed concurrently
	Workers int
	// Process is called once for every row. The first error stops
	// the job.
	Process func(ctx context.Context, row store.Row) error
}

// Submit runs a job in the background. done is called exactly once
// with the result of the job. Close waits for submitted jobs.
func (driver *Driver) Submit(ctx context.Context, job Job, done func(error)) {
	driver.mu.RLock()

	if driver.closed {
		driver.mu.RUnlock()
		done(ErrClosed)

		return
	}

	driver.jobs.Add(1)
	driver.mu.RUnlock()

	go func() {
		defer driver.jobs.Done()

		done(driver.runJob(ctx, job))
	}()
}

func (driver *Driver) runJob(ctx context.Context, job Job) error {
	if job.Process == nil {
		return fmt.Errorf("job on %s has nothing to process", job.Table)
	}

	workers := job.Workers

	if workers <= 0 {
		workers = DefaultWorkers
	}

	logger := log.Operation(ctx, driver.logger, "job").With(zap.String("table", job.Table), zap.Int("workers", workers))
	logger.Debug("start")

	g, ctx := errgroup.WithContext(ctx)
	rows := make(chan store.Row)

	g.Go(func() error {
		defer close(rows)

		cursor, err := driver.Scan(ctx, job.Table, job.Constraint, 0, job.Families)

		if err != nil {
			return err
		}

		defer cursor.Close()

		_, err = stream.ForEach(stream.Pipeline(cursor, stream.Filter(job.Filter), stream.Limit(job.Limit), stream.Log(logger)), func(row store.Row) error {
			select {
			case rows <- row:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		return err
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for row := range rows {
				if err := job.Process(ctx, row); err != nil {
					return err
				}
			}

			return nil
		})
	}

	err := g.Wait()

	if err != nil {
		logger.Warn("job failed", zap.Error(err))
	} else {
		logger.Debug("return")
	}

	return err
}
