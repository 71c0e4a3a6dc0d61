package transport

import (
	"sync"

	"github.com/avdecc-go/avdecc/internal/bufpool"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// VirtualBus is the shared medium a set of VirtualTransport endpoints
// "broadcast" on, modeling the multicast Ethernet segment every AVDECC
// sub-protocol shares. Tests wire several local entities to the same bus
// to exercise discovery/enumeration/connection flows without a real NIC.
type VirtualBus struct {
	mu        sync.RWMutex
	endpoints map[*VirtualTransport]struct{}
}

// NewVirtualBus creates an empty bus.
func NewVirtualBus() *VirtualBus {
	return &VirtualBus{endpoints: make(map[*VirtualTransport]struct{})}
}

func (b *VirtualBus) join(t *VirtualTransport) {
	b.mu.Lock()
	b.endpoints[t] = struct{}{}
	b.mu.Unlock()
}

func (b *VirtualBus) leave(t *VirtualTransport) {
	b.mu.Lock()
	delete(b.endpoints, t)
	b.mu.Unlock()
}

func (b *VirtualBus) broadcast(from *VirtualTransport, frame []byte) {
	b.mu.RLock()
	if _, joined := b.endpoints[from]; !joined {
		b.mu.RUnlock()
		return
	}
	recipients := make([]*VirtualTransport, 0, len(b.endpoints))
	for t := range b.endpoints {
		if t != from {
			recipients = append(recipients, t)
		}
	}
	b.mu.RUnlock()
	for _, t := range recipients {
		t.deliver(frame)
	}
}

// VirtualTransport is the in-memory loopback Transport implementation
// (spec §4.B "virtual, for tests"). It never touches the network; frames
// sent by one endpoint on a VirtualBus are delivered to every other
// endpoint on the same bus.
type VirtualTransport struct {
	baseTransport
	bus *VirtualBus
	mac protocol.MacAddress

	closeOnce sync.Once
}

// NewVirtualTransport creates a transport bound to bus with the given local
// MAC address, dispatching received frames on exec.
func NewVirtualTransport(bus *VirtualBus, mac protocol.MacAddress, exec *executor.Executor) *VirtualTransport {
	t := &VirtualTransport{
		baseTransport: newBaseTransport(exec),
		bus:           bus,
		mac:           mac,
	}
	bus.join(t)
	return t
}

func (t *VirtualTransport) deliver(frame []byte) {
	cp := bufpool.Get(len(frame))
	copy(cp, frame)
	t.dispatch(cp)
}

// SendFrame broadcasts frame to every other endpoint on the bus. After
// Close the endpoint is off the bus and its frames reach no one.
func (t *VirtualTransport) SendFrame(frame []byte) error {
	t.bus.broadcast(t, frame)
	return nil
}

// MacAddress returns the endpoint's configured local address.
func (t *VirtualTransport) MacAddress() protocol.MacAddress { return t.mac }

// Close removes the endpoint from its bus. Idempotent.
func (t *VirtualTransport) Close() error {
	t.closeOnce.Do(func() { t.bus.leave(t) })
	return nil
}
