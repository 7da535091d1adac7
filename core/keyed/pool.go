// Package keyed runs work on a fixed set of workers where every key is pinned
// to one worker, so tasks sharing a key execute sequentially in submission order
// while tasks for different keys may run concurrently.
package keyed

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned when work is submitted after Close.
	ErrClosed = errors.New("keyed: pool closed")
	// ErrFull is returned by TrySubmit when the key's queue is saturated.
	ErrFull = errors.New("keyed: queue full")
)

// Task is a unit of work. The context is the one given at submission.
type Task func(ctx context.Context)

// Options configures a Pool.
type Options struct {
	Workers   int
	QueueSize int
	// OnPanic observes recovered task panics. The worker keeps running.
	OnPanic func(key uint64, recovered any, stack []byte)
}

type item struct {
	ctx context.Context
	key uint64
	run Task
}

// Pool is a bounded worker pool keyed by hashing.
type Pool struct {
	opts   Options
	queues []chan item
	group  errgroup.Group

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	once   sync.Once
}

// New starts a pool with sane defaults if options are zeroed.
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	p := &Pool{
		opts:   opts,
		queues: make([]chan item, opts.Workers),
		stop:   make(chan struct{}),
	}
	for i := range p.queues {
		q := make(chan item, opts.QueueSize)
		p.queues[i] = q
		p.group.Go(func() error {
			for it := range q {
				p.run(it)
			}
			return nil
		})
	}
	return p
}

// Workers reports the number of workers.
func (p *Pool) Workers() int {
	return len(p.queues)
}

// Slot returns the worker index a key is pinned to.
func (p *Pool) Slot(key uint64) int {
	return int(key % uint64(len(p.queues)))
}

// Submit queues fn for key, blocking while the key's queue is full.
func (p *Pool) Submit(ctx context.Context, key uint64, fn Task) error {
	if fn == nil {
		return fmt.Errorf("keyed: nil task")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queues[p.Slot(key)] <- item{ctx: ctx, key: key, run: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stop:
		return ErrClosed
	}
}

// TrySubmit queues fn for key without blocking.
func (p *Pool) TrySubmit(ctx context.Context, key uint64, fn Task) error {
	if fn == nil {
		return fmt.Errorf("keyed: nil task")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queues[p.Slot(key)] <- item{ctx: ctx, key: key, run: fn}:
		return nil
	default:
		return ErrFull
	}
}

// Close stops accepting work, runs everything already queued and waits for the workers.
func (p *Pool) Close() error {
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
		p.mu.Unlock()
	})
	return p.group.Wait()
}

func (p *Pool) run(it item) {
	defer func() {
		if r := recover(); r != nil && p.opts.OnPanic != nil {
			p.opts.OnPanic(it.key, r, debug.Stack())
		}
	}()
	it.run(it.ctx)
}

// Key maps a signed identifier such as a Telegram chat id onto a pool key.
func Key(id int64) uint64 {
	return uint64(id)
}
