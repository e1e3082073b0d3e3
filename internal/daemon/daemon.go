// Package daemon runs sync passes back to back.
//
// The daemon:
//  1. Takes the run lock for its whole lifetime
//  2. Runs a pass, sleeps, runs the next one
//  3. Uses a shorter sleep after a failed pass
//  4. Runs background workers (vocabulary watcher, metrics server) next to
//     the loop and waits for them on shutdown
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	notionsync "github.com/notionsync/notionsync/internal/sync"
)

// Runner runs one sync pass.
type Runner interface {
	Run(ctx context.Context, opts notionsync.RunOptions) (*notionsync.Summary, error)
}

// Locker is an exclusive, non-blocking process lock.
type Locker interface {
	Acquire() error
	Release() error
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the pause between two successful passes.
	Interval time.Duration

	// FailureInterval is the pause after a failed pass.
	FailureInterval time.Duration

	// Logger for daemon activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:        5 * time.Minute,
		FailureInterval: time.Minute,
		Logger:          slog.Default(),
	}
}

type worker struct {
	name string
	fn   func(context.Context) error
}

// Daemon schedules sync passes.
type Daemon struct {
	runner Runner
	lock   Locker
	config *Config

	workers []worker
	wg      sync.WaitGroup

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a daemon with the default configuration.
func New(runner Runner, lock Locker) (*Daemon, error) {
	return NewWithConfig(runner, lock, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(runner Runner, lock Locker, config *Config) (*Daemon, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if lock == nil {
		return nil, fmt.Errorf("lock cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive")
	}
	if config.FailureInterval <= 0 {
		config.FailureInterval = config.Interval
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Daemon{
		runner: runner,
		lock:   lock,
		config: config,
		sleep:  sleepCtx,
	}, nil
}

// AddWorker registers fn to run alongside the loop. It must return when
// its context is cancelled. Workers are started by Start.
func (d *Daemon) AddWorker(name string, fn func(context.Context) error) {
	d.workers = append(d.workers, worker{name: name, fn: fn})
}

// RunOnce runs a single pass under the lock.
func (d *Daemon) RunOnce(ctx context.Context, opts notionsync.RunOptions) (*notionsync.Summary, error) {
	if err := d.lock.Acquire(); err != nil {
		return nil, err
	}
	defer d.release()

	return d.runner.Run(ctx, opts)
}

// Start runs passes until ctx is cancelled. opts.Since applies to the
// first pass only. A lock held by another process fails immediately;
// failed passes do not stop the loop.
func (d *Daemon) Start(ctx context.Context, opts notionsync.RunOptions) error {
	if err := d.lock.Acquire(); err != nil {
		return err
	}
	defer d.release()

	log := d.config.Logger
	log.Info("daemon started", "interval", d.config.Interval, "failure_interval", d.config.FailureInterval)

	workerCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		d.wg.Wait()
		log.Info("daemon stopped")
	}()
	d.startWorkers(workerCtx)

	for {
		wait := d.config.Interval
		if _, err := d.runner.Run(ctx, opts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait = d.config.FailureInterval
		}
		opts.Since = nil

		log.Debug("waiting for next pass", "wait", wait)
		if err := d.sleep(ctx, wait); err != nil {
			log.Info("shutdown signal received")
			return nil
		}
	}
}

func (d *Daemon) startWorkers(ctx context.Context) {
	for _, w := range d.workers {
		d.wg.Add(1)
		go func(w worker) {
			defer d.wg.Done()
			if err := w.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.config.Logger.Error("background worker stopped", "worker", w.name, "error", err)
			}
		}(w)
	}
}

func (d *Daemon) release() {
	if err := d.lock.Release(); err != nil {
		d.config.Logger.Warn("failed to release run lock", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
