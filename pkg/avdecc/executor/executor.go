// Package executor implements the single-threaded cooperative dispatch queue
// that a Protocol Interface (spec §4.C) owns: every incoming frame delivery
// and every observer callback invocation runs on one named worker goroutine,
// so observers never need their own locking to see events in order.
package executor

import (
	"context"
	"log/slog"
	"sync"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/internal/logger"
)

// Executor is a single-worker FIFO task queue bound to one goroutine.
// Concurrency model: Submit may be called from any goroutine; the worker
// goroutine alone executes the submitted funcs, in submission order.
type Executor struct {
	name string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tasks chan func()

	mu       sync.Mutex
	draining bool
}

// defaultQueueDepth bounds how many pending tasks may be buffered before
// Submit blocks the caller; it exists to apply backpressure to producers
// (transport receive loop, retry timers) rather than growing unbounded.
const defaultQueueDepth = 256

// New creates and starts an Executor named name. The name is purely for
// diagnostics (it appears in every log line the executor emits) and for
// lookup via ExecutorManager.
func New(name string) *Executor {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Executor{
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(chan func(), defaultQueueDepth),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

// Name returns the executor's registered name.
func (e *Executor) Name() string { return e.name }

func (e *Executor) run() {
	defer e.wg.Done()
	log := logger.WithExecutor(logger.Logger(), e.name)
	for {
		select {
		case <-e.ctx.Done():
			e.drainAborted(log)
			return
		case fn := <-e.tasks:
			if fn != nil {
				fn()
			}
		}
	}
}

// drainAborted invokes every task still queued at shutdown time. Tasks
// submitted via SubmitWithAbort get their abort callback instead of being
// silently dropped (spec §4.E "each callback is invoked exactly once with
// Aborted on the executor before the object is released").
func (e *Executor) drainAborted(log *slog.Logger) {
	for {
		select {
		case fn := <-e.tasks:
			if fn != nil {
				fn()
			}
		default:
			log.Debug("executor drained", "executor", e.name)
			return
		}
	}
}

// Submit enqueues fn to run on the worker goroutine. It returns an Aborted
// error if the executor has begun shutting down and does not run fn.
func (e *Executor) Submit(fn func()) error {
	if fn == nil {
		return nil
	}
	select {
	case <-e.ctx.Done():
		return avdeccerrors.NewAbortedError("executor.submit")
	default:
	}
	select {
	case e.tasks <- fn:
		return nil
	case <-e.ctx.Done():
		return avdeccerrors.NewAbortedError("executor.submit")
	}
}

// SubmitWithAbort enqueues fn to run normally, but guarantees onAbort runs
// exactly once (on the worker goroutine) if the executor shuts down before
// fn was dispatched, instead of fn silently never running.
func (e *Executor) SubmitWithAbort(fn func(), onAbort func()) {
	wrapped := func() {
		select {
		case <-e.ctx.Done():
			if onAbort != nil {
				onAbort()
			}
		default:
			fn()
		}
	}
	if err := e.Submit(wrapped); err != nil && onAbort != nil {
		onAbort()
	}
}

// Shutdown cancels the executor, drains any tasks still queued (invoking
// them so pending AECP/ACMP callbacks observe Aborted rather than hanging
// forever), and blocks until the worker goroutine has exited.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		e.wg.Wait()
		return
	}
	e.draining = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

// Done returns a channel closed once the executor has shut down.
func (e *Executor) Done() <-chan struct{} { return e.ctx.Done() }
