// Package throttle schedules units of work with bounded concurrency and a minimum
// interval between consecutive starts. Excess submissions wait in a FIFO queue.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Defaults applied by New for zero config fields.
const (
	DefaultMaxConcurrent = 3
	DefaultMinInterval   = 200 * time.Millisecond
	DefaultQueueSize     = 1024
)

// ErrClosed is returned for units submitted after Close or still queued when Close runs.
var ErrClosed = errors.New("throttle: closed")

// Config configures a Throttle. MinInterval < 0 disables spacing.
type Config struct {
	MaxConcurrent int
	MinInterval   time.Duration
	QueueSize     int
}

// Observer is notified when units start and finish. telemetry.Metrics implements it.
type Observer interface {
	DispatchStarted(ctx context.Context)
	DispatchFinished(ctx context.Context)
}

// Stats is a point-in-time view of the throttle.
type Stats struct {
	InFlight int
	Queued   int
	Admitted uint64
}

const (
	stateQueued int32 = iota
	stateStarted
	stateCancelled
)

type unit struct {
	ctx   context.Context
	fn    func(context.Context) error
	done  chan error
	state atomic.Int32
}

// Throttle is safe for concurrent use. Create with New; release with Close.
type Throttle struct {
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	queue    chan *unit
	observer Observer

	mu      sync.RWMutex
	closed  bool
	closing chan struct{}
	sealed  chan struct{}
	done    chan struct{}
	stopCtx context.Context
	stop    context.CancelFunc
	once    sync.Once
	running sync.WaitGroup

	inFlight atomic.Int64
	admitted atomic.Uint64
}

// New starts a Throttle's dispatcher. observer may be nil.
func New(cfg Config, observer Observer) *Throttle {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	stopCtx, stop := context.WithCancel(context.Background())
	t := &Throttle{
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limiter:  rate.NewLimiter(limit, 1),
		queue:    make(chan *unit, cfg.QueueSize),
		observer: observer,
		closing:  make(chan struct{}),
		sealed:   make(chan struct{}),
		done:     make(chan struct{}),
		stopCtx:  stopCtx,
		stop:     stop,
	}
	go t.dispatch()
	return t
}

// Submit enqueues fn and waits for its result, which is returned unchanged.
// It blocks while the queue is full. If ctx ends before fn starts, fn never runs
// and Submit returns ctx.Err(); once started, fn runs to completion with ctx.
func (t *Throttle) Submit(ctx context.Context, fn func(context.Context) error) error {
	u := &unit{ctx: ctx, fn: fn, done: make(chan error, 1)}
	if err := t.enqueue(ctx, u); err != nil {
		return err
	}
	select {
	case err := <-u.done:
		return err
	case <-ctx.Done():
		if u.state.CompareAndSwap(stateQueued, stateCancelled) {
			return ctx.Err()
		}
		return <-u.done
	}
}

// Do runs fn through t and returns its value and error unchanged.
func Do[T any](ctx context.Context, t *Throttle, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := t.Submit(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

func (t *Throttle) enqueue(ctx context.Context, u *unit) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrClosed
	}
	select {
	case t.queue <- u:
		t.admitted.Add(1)
		return nil
	case <-t.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch is the single consumer of the queue, which keeps starts in FIFO order.
func (t *Throttle) dispatch() {
	defer close(t.done)
	for {
		select {
		case u := <-t.queue:
			t.start(u)
		case <-t.closing:
			<-t.sealed
			for {
				select {
				case u := <-t.queue:
					t.reject(u)
				default:
					t.running.Wait()
					return
				}
			}
		}
	}
}

func (t *Throttle) start(u *unit) {
	if u.state.Load() == stateCancelled {
		return
	}
	if err := t.sem.Acquire(t.stopCtx, 1); err != nil {
		t.reject(u)
		return
	}
	if err := t.limiter.Wait(t.stopCtx); err != nil {
		t.sem.Release(1)
		t.reject(u)
		return
	}
	if !u.state.CompareAndSwap(stateQueued, stateStarted) {
		t.sem.Release(1)
		return
	}
	t.inFlight.Add(1)
	t.running.Add(1)
	if t.observer != nil {
		t.observer.DispatchStarted(u.ctx)
	}
	go func() {
		defer t.running.Done()
		err := t.run(u)
		t.inFlight.Add(-1)
		if t.observer != nil {
			t.observer.DispatchFinished(u.ctx)
		}
		t.sem.Release(1)
		u.done <- err
	}()
}

func (t *Throttle) run(u *unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("throttle: unit panicked: %v", r)
			err = fmt.Errorf("throttle: unit panicked: %v", r)
		}
	}()
	return u.fn(u.ctx)
}

func (t *Throttle) reject(u *unit) {
	if u.state.CompareAndSwap(stateQueued, stateCancelled) {
		u.done <- ErrClosed
	}
}

// Close stops admitting work, fails queued units with ErrClosed, and waits for
// running units to finish. Safe to call more than once.
func (t *Throttle) Close() error {
	t.once.Do(func() {
		close(t.closing)
		t.stop()
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()
		close(t.sealed)
	})
	<-t.done
	return nil
}

// Stats reports current load.
func (t *Throttle) Stats() Stats {
	return Stats{
		InFlight: int(t.inFlight.Load()),
		Queued:   len(t.queue),
		Admitted: t.admitted.Load(),
	}
}
