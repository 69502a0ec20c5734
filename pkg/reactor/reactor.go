// Package reactor provides a single-consumer event queue. Callbacks
// posted from any goroutine (GPIO edge handlers, signal handlers, config
// reloads) run one at a time on the reactor goroutine, in order.
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"filebuttons/pkg/log"
)

// DefaultQueueSize is the queue length used when New is given size <= 0.
const DefaultQueueSize = 256

// Common errors
var (
	ErrReactorClosed = errors.New("reactor: reactor closed")
	ErrTimeout       = errors.New("reactor: operation timed out")
)

// Completion represents an async operation that will complete with a result.
type Completion struct {
	reactor *Reactor
	result  interface{}
	done    chan struct{}
	once    sync.Once
}

// Test returns true if the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the completion result and wakes any waiters.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until the completion is done or the timeout expires.
// Returns the result or timeoutResult if the timeout expires or the
// reactor ends first.
func (c *Completion) Wait(timeout time.Duration, timeoutResult interface{}) interface{} {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.result
	case <-timer.C:
		return timeoutResult
	case <-c.reactor.ctx.Done():
		select {
		case <-c.done:
			return c.result
		default:
			return timeoutResult
		}
	}
}

// Reactor dispatches posted callbacks on one goroutine.
type Reactor struct {
	queue chan func()

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// Running state
	running atomic.Bool
	wg      sync.WaitGroup

	processed atomic.Uint64
	panics    atomic.Uint64

	log *log.Logger
}

// New creates a new Reactor with room for size pending callbacks.
func New(size int) *Reactor {
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		queue:  make(chan func(), size),
		ctx:    ctx,
		cancel: cancel,
		log:    log.GetLogger("reactor"),
	}
}

// Completion creates a new pending completion.
func (r *Reactor) Completion() *Completion {
	return &Completion{
		reactor: r,
		done:    make(chan struct{}),
	}
}

// Post queues fn for the reactor goroutine. It blocks while the queue is
// full and returns false if the reactor has ended.
func (r *Reactor) Post(fn func()) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.queue <- fn:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// Call queues fn and returns a completion holding its result. If the
// reactor has ended the completion holds ErrReactorClosed.
func (r *Reactor) Call(fn func() interface{}) *Completion {
	completion := r.Completion()
	if !r.Post(func() { completion.Complete(fn()) }) {
		completion.Complete(ErrReactorClosed)
	}
	return completion
}

// Pending returns the number of queued callbacks.
func (r *Reactor) Pending() int {
	return len(r.queue)
}

// Processed returns the number of callbacks run so far.
func (r *Reactor) Processed() uint64 {
	return r.processed.Load()
}

// Panics returns the number of callbacks that panicked.
func (r *Reactor) Panics() uint64 {
	return r.panics.Load()
}

// Done is closed when the reactor ends.
func (r *Reactor) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Run starts the reactor's main dispatch loop.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return // Already running
	}

	r.wg.Add(1)
	go r.dispatchLoop()
}

// End signals the reactor to stop. Callbacks still queued are dropped.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait waits for the reactor to stop.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

// dispatchLoop is the main event dispatch loop.
func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for {
		select {
		case fn := <-r.queue:
			r.invoke(fn)
		case <-r.ctx.Done():
			return
		}
	}
}

// invoke runs one callback. A panicking callback is logged and counted
// so later events are still dispatched.
func (r *Reactor) invoke(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.log.WithField("panic", fmt.Sprint(rec)).Error("reactor callback panicked")
		}
		r.processed.Add(1)
	}()
	fn()
}
