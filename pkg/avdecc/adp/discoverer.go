package adp

import (
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// InterfaceKey identifies one advertised network interface of one remote
// entity (spec §4.D "identify the interface by (EntityID, interfaceIndex)
// ... otherwise by (EntityID, GlobalAvbInterfaceIndex)").
type InterfaceKey struct {
	EntityID       protocol.EntityID
	InterfaceIndex uint16
}

// EntitySnapshot is the ADP-level view of one remote entity's interface,
// as of the most recently processed EntityAvailable.
type EntitySnapshot struct {
	Key            InterfaceKey
	AvailableIndex uint32
	ADPDU          protocol.ADPDU
}

// Observer receives ADP-level online/update/offline notifications (spec
// §4.D). All methods are invoked on the owning Protocol Interface's
// executor.
type Observer interface {
	OnEntityOnline(snap EntitySnapshot)
	OnEntityUpdate(snap EntitySnapshot, previous EntitySnapshot)
	OnEntityOffline(entityID protocol.EntityID)
	OnEntityRedundantInterfaceOnline(snap EntitySnapshot)
	OnEntityRedundantInterfaceOffline(key InterfaceKey)
}

type trackedInterface struct {
	snapshot EntitySnapshot
	ttl      *time.Timer
}

// Discoverer runs the remote-side half of the ADP state machine: it
// listens for EntityAvailable/EntityDeparting and maintains, per
// (EntityID, interfaceIndex), a TTL expiring at validTime*2.
type Discoverer struct {
	pi  *protocolif.Interface
	obs Observer

	mu         sync.Mutex
	interfaces map[InterfaceKey]*trackedInterface
	entities   map[protocol.EntityID]map[uint16]struct{}

	unregister func()
}

// NewDiscoverer creates a Discoverer reporting to obs.
func NewDiscoverer(pi *protocolif.Interface, obs Observer) *Discoverer {
	return &Discoverer{
		pi:         pi,
		obs:        obs,
		interfaces: make(map[InterfaceKey]*trackedInterface),
		entities:   make(map[protocol.EntityID]map[uint16]struct{}),
	}
}

// Start begins observing ADP frames.
func (d *Discoverer) Start() {
	d.unregister = d.pi.ObserveADP(d.onADPFrame)
}

// Stop stops observing ADP frames and cancels every outstanding TTL timer
// without emitting offline notifications (the Discoverer itself is being
// torn down, not the remote entities).
func (d *Discoverer) Stop() {
	if d.unregister != nil {
		d.unregister()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ti := range d.interfaces {
		ti.ttl.Stop()
	}
	d.interfaces = make(map[InterfaceKey]*trackedInterface)
	d.entities = make(map[protocol.EntityID]map[uint16]struct{})
}

func interfaceKeyFor(adpdu *protocol.ADPDU) InterfaceKey {
	caps := protocol.EntityCapabilities(adpdu.EntityCapabilities)
	if caps.Has(protocol.EntityCapAemInterfaceIndexValid) {
		return InterfaceKey{EntityID: adpdu.EntityID, InterfaceIndex: adpdu.InterfaceIndex}
	}
	return InterfaceKey{EntityID: adpdu.EntityID, InterfaceIndex: 0}
}

func (d *Discoverer) onADPFrame(frame []byte) {
	adpdu, err := protocol.ParseADPDU(frame)
	if err != nil {
		return
	}
	switch adpdu.MessageType {
	case protocol.AdpEntityAvailable:
		d.handleAvailable(adpdu)
	case protocol.AdpEntityDeparting:
		d.handleDeparting(adpdu)
	}
}

func (d *Discoverer) handleAvailable(adpdu *protocol.ADPDU) {
	key := interfaceKeyFor(adpdu)
	// adpdu.ValidTime is in units of 2 seconds (spec §6.1); the advertised
	// TTL a remote interface is assumed gone after is that value directly.
	ttl := time.Duration(adpdu.ValidTime) * 2 * time.Second

	d.mu.Lock()
	existing, known := d.interfaces[key]
	isFirstInterfaceForEntity := len(d.entities[adpdu.EntityID]) == 0

	snap := EntitySnapshot{Key: key, AvailableIndex: adpdu.AvailableIndex, ADPDU: *adpdu}
	var previous EntitySnapshot
	action := 0 // 0=ignore duplicate, 1=online(first iface), 2=update, 3=redundant-online
	if !known {
		if isFirstInterfaceForEntity {
			action = 1
		} else {
			action = 3
		}
	} else {
		previous = existing.snapshot
		switch {
		case adpdu.AvailableIndex == existing.snapshot.AvailableIndex:
			action = 0
		case adpdu.AvailableIndex < existing.snapshot.AvailableIndex:
			action = 1 // reset: treat as fresh online (spec §4.D.3)
		default:
			action = 2
		}
	}

	ti := &trackedInterface{snapshot: snap}
	ti.ttl = time.AfterFunc(ttl, func() {
		_ = d.pi.Executor().Submit(func() { d.handleExpiry(key) })
	})
	if existing != nil {
		existing.ttl.Stop()
	}
	d.interfaces[key] = ti
	if d.entities[adpdu.EntityID] == nil {
		d.entities[adpdu.EntityID] = make(map[uint16]struct{})
	}
	d.entities[adpdu.EntityID][key.InterfaceIndex] = struct{}{}
	d.mu.Unlock()

	switch action {
	case 1:
		d.obs.OnEntityOnline(snap)
	case 2:
		d.obs.OnEntityUpdate(snap, previous)
	case 3:
		d.obs.OnEntityRedundantInterfaceOnline(snap)
	}
}

func (d *Discoverer) handleDeparting(adpdu *protocol.ADPDU) {
	key := interfaceKeyFor(adpdu)
	d.removeInterface(key)
}

func (d *Discoverer) handleExpiry(key InterfaceKey) {
	d.removeInterface(key)
}

// removeInterface drops one tracked interface and fires the appropriate
// offline notification: a full OnEntityOffline when it was the last
// interface for that entity, otherwise OnEntityRedundantInterfaceOffline.
func (d *Discoverer) removeInterface(key InterfaceKey) {
	d.mu.Lock()
	ti, ok := d.interfaces[key]
	if !ok {
		d.mu.Unlock()
		return
	}
	ti.ttl.Stop()
	delete(d.interfaces, key)

	entityID := key.EntityID
	ifaces := d.entities[entityID]
	delete(ifaces, key.InterfaceIndex)
	lastInterface := len(ifaces) == 0
	if lastInterface {
		delete(d.entities, entityID)
	}
	d.mu.Unlock()

	if lastInterface {
		d.obs.OnEntityOffline(entityID)
	} else {
		d.obs.OnEntityRedundantInterfaceOffline(key)
	}
}

// Snapshot returns the currently tracked interface for key, if any.
func (d *Discoverer) Snapshot(key InterfaceKey) (EntitySnapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ti, ok := d.interfaces[key]
	if !ok {
		return EntitySnapshot{}, false
	}
	return ti.snapshot, true
}
