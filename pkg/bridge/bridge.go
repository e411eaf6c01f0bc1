// Package bridge lets synchronous FUSE callbacks wait on work executed by a
// fixed pool of backend workers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrStopped is returned by Do once the bridge has been stopped.
var ErrStopped = errors.New("bridge stopped")

// Bridge owns the backend workers. Callers submit work with Do and block
// until it has completed.
type Bridge struct {
	workers int
	jobs    chan func(ctx context.Context)

	once    sync.Once
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped chan struct{}
}

// New creates a bridge with the given number of workers. A single worker
// serialises all backend access.
func New(workers int) *Bridge {
	if workers < 1 {
		workers = 1
	}
	return &Bridge{
		workers: workers,
		jobs:    make(chan func(ctx context.Context)),
		stopped: make(chan struct{}),
	}
}

// Start launches the workers. The context is handed to every job.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < b.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case job := <-b.jobs:
					job(gctx)
				case <-gctx.Done():
					return nil
				}
			}
		})
	}
	b.group = g
	log.WithField("workers", b.workers).Debug("bridge started")
}

// Stop shuts the workers down and waits for running jobs to finish.
// Pending and future calls to Do return ErrStopped.
func (b *Bridge) Stop() error {
	var err error
	b.once.Do(func() {
		close(b.stopped)
		if b.cancel == nil {
			return
		}
		b.cancel()
		err = b.group.Wait()
	})
	return err
}

// Do runs fn on a worker and blocks until it returns.
func Do[T any](b *Bridge, fn func(ctx context.Context) (T, error)) (res T, err error) {
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	job := func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("bridge job panicked")
				done <- result{err: fmt.Errorf("bridge job panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}

	select {
	case b.jobs <- job:
	case <-b.stopped:
		return res, ErrStopped
	}

	r := <-done
	return r.val, r.err
}
