// Package protocolif implements the Protocol Interface (spec §4.C): it
// multiplexes ADP, AECP, and ACMP on one Transport, owns the named executor
// every delivered frame and every callback runs on, and provides
// sequence-ID-correlated command/response with retry for AECP and ACMP.
package protocolif

import (
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

// Timing holds the AECP/ACMP retry schedule (spec §4.E/§4.F "timeout and
// retry budget"). Each pendingCommand drives its own backoff.Backoff with
// Min==Max so retries land on a fixed interval rather than exponential
// growth; the library is still the thing tracking attempt count and
// next-fire duration.
type Timing struct {
	AEMCommandTimeout    time.Duration
	AddressAccessTimeout time.Duration
	VendorUniqueTimeout  time.Duration
	AcmpCommandTimeout   time.Duration
	Retries              int
}

// DefaultTiming matches spec §4.E/§4.F: 250ms per hop, one retry.
func DefaultTiming() Timing {
	return Timing{
		AEMCommandTimeout:    250 * time.Millisecond,
		AddressAccessTimeout: 250 * time.Millisecond,
		VendorUniqueTimeout:  250 * time.Millisecond,
		AcmpCommandTimeout:   250 * time.Millisecond,
		Retries:              1,
	}
}

// ResponseCallback is invoked exactly once per command, on the Protocol
// Interface's executor, with either a matched response frame or an error
// (TimeoutError after the retry budget is exhausted, TransportError, or
// AbortedError on shutdown).
type ResponseCallback func(response []byte, err error)

// VendorUniqueDelegate handles vendor-unique AECP subframes for one
// protocolID (spec §4.C "registerVendorUniqueDelegate"). This package
// registers no delegate itself: Milan MVU commands sent through
// SendAECPCommand are matched to their responses by sequence ID. Callers
// may register delegates for Milan or proprietary protocols.
type VendorUniqueDelegate interface {
	// HandleFrame is invoked on the owning executor for every Vendor-Unique
	// AECPDU carrying this delegate's protocolID, command and response
	// alike.
	HandleFrame(frame []byte)
}

// Interface is the Protocol Interface: one Transport, one executor, and the
// sequence-correlated command bookkeeping layered on top (spec §4.C).
type Interface struct {
	name      string
	transport transport.Transport
	exec      *executor.Executor
	timing    Timing

	seqMu   sync.Mutex
	nextSeq uint16

	aecpPending pendingTable
	acmpPending pendingTable

	vuMu       sync.RWMutex
	vendorUniq map[uint64]VendorUniqueDelegate

	adpObservers  rawObservers
	acmpObservers rawObservers
	aemObservers  rawObservers

	unregisterTransport func()

	closeOnce sync.Once
}

// New wires a Protocol Interface to tr using the named executor (created
// or reused via the process-wide executor.Manager, so an entity advertising
// and controlling over the same physical interface shares one dispatch
// queue, per spec §9).
func New(name string, tr transport.Transport, timing Timing) *Interface {
	exec := executor.GetOrCreate(name)
	pi := &Interface{
		name:       name,
		transport:  tr,
		exec:       exec,
		timing:     timing,
		vendorUniq: make(map[uint64]VendorUniqueDelegate),
	}
	pi.aecpPending.init()
	pi.acmpPending.init()
	pi.unregisterTransport = tr.Observe(pi.onFrame)
	return pi
}

// Executor exposes the owning executor so higher layers (ADP/ACMP/AECP
// state machines) can schedule their own periodic work (advertising, TTL
// sweeps, command retries) on the same goroutine as frame delivery.
func (pi *Interface) Executor() *executor.Executor { return pi.exec }

// LocalMacAddress returns the bound transport's hardware address.
func (pi *Interface) LocalMacAddress() protocol.MacAddress { return pi.transport.MacAddress() }

func (pi *Interface) nextSequenceID() uint16 {
	pi.seqMu.Lock()
	defer pi.seqMu.Unlock()
	id := pi.nextSeq
	pi.nextSeq++
	return id
}

// ObserveADP, ObserveACMP, and ObserveAEM let higher-layer state machines
// (discovery, connection management, enumeration) subscribe to every
// classified frame of their sub-protocol, already running on pi.Executor().
func (pi *Interface) ObserveADP(fn func(frame []byte)) func()  { return pi.adpObservers.add(fn) }
func (pi *Interface) ObserveACMP(fn func(frame []byte)) func() { return pi.acmpObservers.add(fn) }
func (pi *Interface) ObserveAEM(fn func(frame []byte)) func()  { return pi.aemObservers.add(fn) }

// onFrame is invoked on pi.exec for every frame the transport receives. It
// classifies by AVTP subtype and dispatches to the matching sub-protocol
// path; unknown subtypes are logged and dropped (spec §4.C).
func (pi *Interface) onFrame(frame []byte) {
	if len(frame) <= protocol.EthernetHeaderLen {
		return
	}
	subtype := frame[protocol.EthernetHeaderLen]
	switch subtype {
	case protocol.SubtypeADP:
		pi.adpObservers.fire(frame)
	case protocol.SubtypeACMP:
		pi.handleACMPFrame(frame)
	case protocol.SubtypeAECP:
		pi.handleAECPFrame(frame)
	default:
		logger.Debug("protocolif: dropped unknown AVTP subtype", "subtype", subtype)
	}
}

// Close tears down the Protocol Interface: it stops observing the
// transport and aborts every command still awaiting a response. It does
// not close the transport itself, since the transport may be shared.
func (pi *Interface) Close() {
	pi.closeOnce.Do(func() {
		if pi.unregisterTransport != nil {
			pi.unregisterTransport()
		}
		pi.aecpPending.abortAll(pi.exec, "protocolif.close")
		pi.acmpPending.abortAll(pi.exec, "protocolif.close")
	})
}

// rawObservers is the minimal typed pub/sub used to fan raw, already
// subtype-classified frames out to exactly the higher layers interested in
// them, without those layers reaching into the transport directly.
type rawObservers struct {
	mu  sync.RWMutex
	fns map[int]func([]byte)
	seq int
}

func (r *rawObservers) add(fn func([]byte)) func() {
	r.mu.Lock()
	id := r.seq
	r.seq++
	if r.fns == nil {
		r.fns = make(map[int]func([]byte))
	}
	r.fns[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.fns, id)
		r.mu.Unlock()
	}
}

func (r *rawObservers) fire(frame []byte) {
	r.mu.RLock()
	fns := make([]func([]byte), 0, len(r.fns))
	for _, fn := range r.fns {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()
	for _, fn := range fns {
		fn(frame)
	}
}
