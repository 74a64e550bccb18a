// Package outbound runs fire-and-forget side effects (notification sends)
// on a small worker pool so request paths never wait on them.
//
// # Architecture boundaries
//
// The dispatcher owns buffering, worker lifetime and per-job timeouts. It does
// NOT decide what to send; callers submit closures.
//
// # What this package must NOT do
//
//   - Retry failed jobs.
//   - Import goIdentity or any sibling internal package.
package outbound

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of fire-and-forget work.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config controls buffering and concurrency.
type Config struct {
	BufferSize int
	Workers    int
	DropIfFull bool
	Timeout    time.Duration
}

// Dispatcher executes submitted jobs on background workers.
type Dispatcher struct {
	cfg       Config
	ch        chan Job
	done      chan struct{}
	wg        sync.WaitGroup
	onError   func(name string, err error)
	dropped   atomic.Uint64
	failed    atomic.Uint64
	completed atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// New starts cfg.Workers workers. onError, when set, is called for every
// job that returns an error.
func New(cfg Config, onError func(name string, err error)) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	d := &Dispatcher{
		cfg:     cfg,
		ch:      make(chan Job, cfg.BufferSize),
		done:    make(chan struct{}),
		onError: onError,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.run()
	}

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.ch:
			d.execute(job)
		case <-d.done:
			for {
				select {
				case job := <-d.ch:
					d.execute(job)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) execute(job Job) {
	ctx := context.Background()
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	if err := job.Run(ctx); err != nil {
		d.failed.Add(1)
		if d.onError != nil {
			d.onError(job.Name, err)
		}
		return
	}
	d.completed.Add(1)
}

// Submit queues job and reports whether it was accepted. With DropIfFull a
// full buffer drops the job; otherwise Submit waits for room until ctx is
// done or the dispatcher closes.
func (d *Dispatcher) Submit(ctx context.Context, job Job) bool {
	if d == nil || d.closed.Load() || job.Run == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- job:
			return true
		case <-d.done:
			return false
		default:
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- job:
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
		return false
	case <-d.done:
		return false
	}
}

// Close stops accepting jobs, runs what is buffered, and waits for workers.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}

func (d *Dispatcher) Completed() uint64 {
	if d == nil {
		return 0
	}
	return d.completed.Load()
}
