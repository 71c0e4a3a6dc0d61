// Package transport implements the AVDECC Transport contract (spec §4.B):
// L2 Ethernet send/receive, MAC addressing, and executor-bound dispatch of
// received frames to the Protocol Interface.
package transport

import (
	"sync"

	"github.com/avdecc-go/avdecc/internal/bufpool"
	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// FrameObserver receives every frame the transport's receive task pulls off
// the wire (or the loopback queue), already dispatched on the owning
// executor so observers need no locking of their own.
type FrameObserver func(frame []byte)

// Transport is the abstract contract Protocol Interface builds on. The real
// implementation wraps a CaptureBackend (pcap via OpenLive); the
// virtual implementation is an in-memory loopback used by tests and by
// entities that share a process (spec §4.B "Implementations: raw Ethernet
// via capture driver (real) and in-memory loopback (virtual, for tests)").
type Transport interface {
	// SendFrame transmits a fully serialized Ethernet frame.
	SendFrame(frame []byte) error
	// MacAddress returns the local interface's hardware address.
	MacAddress() protocol.MacAddress
	// Observe registers fn to be called, on exec, for every received frame.
	// Returns an unregister function.
	Observe(fn FrameObserver) (unregister func())
	// Close stops the receive task and releases the backend.
	Close() error
}

// baseTransport factors the observer bookkeeping shared by every Transport
// implementation: a single receive task posts each frame to exec, which
// then fans it out to every currently-registered observer.
type baseTransport struct {
	exec *executor.Executor

	mu        sync.RWMutex
	observers map[int]FrameObserver
	nextID    int
}

func newBaseTransport(exec *executor.Executor) baseTransport {
	return baseTransport{exec: exec, observers: make(map[int]FrameObserver)}
}

func (b *baseTransport) Observe(fn FrameObserver) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.observers, id)
		b.mu.Unlock()
	}
}

// dispatch submits delivery of frame to every observer on the executor, so
// all observer invocations for all transports sharing that executor
// interleave on one goroutine in receive order.
func (b *baseTransport) dispatch(frame []byte) {
	err := b.exec.Submit(func() {
		b.mu.RLock()
		fns := make([]FrameObserver, 0, len(b.observers))
		for _, fn := range b.observers {
			fns = append(fns, fn)
		}
		b.mu.RUnlock()
		for _, fn := range fns {
			fn(frame)
		}
		// Returning frame here (rather than at the dispatch call site) is
		// what makes pooling safe: Submit runs this closure later, on the
		// executor goroutine, strictly after every observer above has
		// finished reading frame. Put keeps only buffers whose capacity
		// equals one of its size classes and drops the rest, so a
		// RealTransport frame either is dropped or, at a matching
		// capacity, is pooled once no observer holds it.
		bufpool.Put(frame)
	})
	if err != nil {
		logger.Debug("transport: dropped received frame, executor shutting down", "error", err)
	}
}

// ensureTransportError wraps a low-level send failure so callers always see
// the documented error taxonomy (spec §4.C "fails with TransportError").
func ensureTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return avdeccerrors.NewTransportError(op, err)
}
