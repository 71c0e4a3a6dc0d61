// Package controller holds the EntityID → ControlledEntity registry and
// the three reactive resolvers spec §4.J describes: channel-connection,
// media-clock chain, and identify-control discovery.
package controller

import (
	"sync"

	"github.com/looplab/fsm"

	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/enumeration"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// CompatibilityFlags is the full observer-visible compatibility bitset
// (spec §4.J), a superset of enumeration.CompatibilityFlags: the
// Warning variants are added here because only the controller's
// Identify-control resolver (§4.J.3) can determine them.
type CompatibilityFlags uint8

const (
	CompatibilityIEEE17221 CompatibilityFlags = 1 << iota
	CompatibilityIEEE17221Warning
	CompatibilityMilan
	CompatibilityMilanWarning
	CompatibilityMisbehaving
)

func fromEnumerationFlags(f enumeration.CompatibilityFlags) CompatibilityFlags {
	var out CompatibilityFlags
	if f&enumeration.CompatibilityIEEE17221 != 0 {
		out |= CompatibilityIEEE17221
	}
	if f&enumeration.CompatibilityMilan != 0 {
		out |= CompatibilityMilan
	}
	if f&enumeration.CompatibilityMisbehaving != 0 {
		out |= CompatibilityMisbehaving
	}
	return out
}

// StreamInputConnectionInfo is a listener stream input's live connection
// state (spec §4.J.1).
type StreamInputConnectionInfo struct {
	Connected     bool
	TalkerEntityID protocol.EntityID
	TalkerStream  protocol.DescriptorIndex
}

// ControlledEntity is the controller's view of one remote entity: its
// enumerated model plus the reactive state the resolvers maintain on top
// of it.
type ControlledEntity struct {
	mu sync.RWMutex

	entityID    protocol.EntityID
	online      bool
	tree        *entitymodel.EntityNode
	compat      CompatibilityFlags
	identifyControlIndex protocol.DescriptorIndex
	// advertisedIdentifyIndex is the raw ADP identifyControlIndex field,
	// held until enumeration completes and ResolveIdentifyControl can
	// check it against the descriptor tree.
	advertisedIdentifyIndex protocol.DescriptorIndex

	// streamConnections is indexed by StreamInput descriptor index.
	streamConnections map[protocol.DescriptorIndex]StreamInputConnectionInfo

	// acquireFSM and lockFSM track this controller's local view of
	// AcquireEntity/LockEntity ownership (spec §4.G, §7). They are driven
	// exclusively from acquire.go and read under c.mu like every other
	// field here.
	acquireFSM *fsm.FSM
	lockFSM    *fsm.FSM
}

func newControlledEntity(entityID protocol.EntityID) *ControlledEntity {
	return &ControlledEntity{
		entityID:          entityID,
		identifyControlIndex: protocol.InvalidDescriptorIndex,
		streamConnections: make(map[protocol.DescriptorIndex]StreamInputConnectionInfo),
		acquireFSM:        newOwnershipFSM(),
		lockFSM:           newOwnershipFSM(),
	}
}

// EntityID returns the entity this record describes.
func (c *ControlledEntity) EntityID() protocol.EntityID { return c.entityID }

// Online reports whether ADP currently advertises this entity.
func (c *ControlledEntity) Online() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online
}

// Tree returns the last enumerated static/dynamic model, or nil if
// enumeration has not completed.
func (c *ControlledEntity) Tree() *entitymodel.EntityNode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree
}

// Compatibility returns the entity's current compatibility flags.
func (c *ControlledEntity) Compatibility() CompatibilityFlags {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.compat
}

// StreamConnection returns the listener-side connection info for one
// StreamInput descriptor index.
func (c *ControlledEntity) StreamConnection(streamIndex protocol.DescriptorIndex) (StreamInputConnectionInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.streamConnections[streamIndex]
	return info, ok
}

// StreamConnections returns a snapshot of every listener-side stream
// connection currently known, keyed by StreamInput descriptor index.
func (c *ControlledEntity) StreamConnections() map[protocol.DescriptorIndex]StreamInputConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[protocol.DescriptorIndex]StreamInputConnectionInfo, len(c.streamConnections))
	for k, v := range c.streamConnections {
		out[k] = v
	}
	return out
}

// markOnline records an ADP EntityAvailable sighting, stashing the
// advertised identifyControlIndex for later resolution once enumeration
// completes.
func (c *ControlledEntity) markOnline(advertisedIdentifyIndex protocol.DescriptorIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = true
	c.advertisedIdentifyIndex = advertisedIdentifyIndex
}

// markOffline records an ADP departure or TTL expiry. The last-known tree
// and compatibility flags are left in place for inspection.
func (c *ControlledEntity) markOffline() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = false
}

func (c *ControlledEntity) advertisedIdentify() protocol.DescriptorIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.advertisedIdentifyIndex
}

// setEnumerated installs a freshly enumerated tree, its compatibility
// flags, and the resolved identify-control index.
func (c *ControlledEntity) setEnumerated(tree *entitymodel.EntityNode, compat CompatibilityFlags, identifyControlIndex protocol.DescriptorIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
	c.compat = compat
	c.identifyControlIndex = identifyControlIndex
}

// flagMisbehaving sets CompatibilityMisbehaving after a query error the
// scheduler reported as catastrophic.
func (c *ControlledEntity) flagMisbehaving() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.compat |= CompatibilityMisbehaving
}

// IdentifyControlIndex returns the resolved (not merely advertised)
// Identify control index, or protocol.InvalidDescriptorIndex if none
// resolved.
func (c *ControlledEntity) IdentifyControlIndex() protocol.DescriptorIndex {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identifyControlIndex
}

// setStreamConnection updates one StreamInput's listener-side connection
// state (spec §4.J.1, fed by ACMP response sniffing).
func (c *ControlledEntity) setStreamConnection(streamIndex protocol.DescriptorIndex, info StreamInputConnectionInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamConnections[streamIndex] = info
}

// Guard is a handle on a ControlledEntity obtained from Registry. It
// holds no lock itself: each ControlledEntity accessor takes the entity's
// own RWMutex for the duration of that one call only, so two reads made
// through the same Guard may observe different states if a write lands
// between them.
type Guard struct {
	entity *ControlledEntity
}

// Entity returns the guarded ControlledEntity. It remains valid to read
// until Release is called.
func (g Guard) Entity() *ControlledEntity { return g.entity }

// Release does nothing: the guard holds no lock, so a Guard that is never
// released leaks nothing and concurrent guards never contend.
func (g Guard) Release() {}

// Registry owns the EntityID → ControlledEntity map (spec §4.J "owner").
// Reads take a shared guard; writes (entity online/offline, enumeration
// completion) happen only from the executor that owns this Registry, per
// the single-writer discipline spec §5 describes.
type Registry struct {
	mu       sync.RWMutex
	entities map[protocol.EntityID]*ControlledEntity
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[protocol.EntityID]*ControlledEntity)}
}

// Guard looks up entityID and returns a Guard if present.
func (r *Registry) Guard(entityID protocol.EntityID) (Guard, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entityID]
	if !ok {
		return Guard{}, false
	}
	return Guard{entity: e}, true
}

// EntityIDs returns a snapshot of every known entity.
func (r *Registry) EntityIDs() []protocol.EntityID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]protocol.EntityID, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	return ids
}

// getOrCreate returns the existing record for entityID or creates one.
// Callers must hold no lock; getOrCreate takes the registry write lock
// itself.
func (r *Registry) getOrCreate(entityID protocol.EntityID) (*ControlledEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, existed := r.entities[entityID]
	if !existed {
		e = newControlledEntity(entityID)
		r.entities[entityID] = e
	}
	return e, existed
}

// Restore installs a ControlledEntity built from previously persisted
// state (spec §6.5 import), producing a "virtual" entity not backed by
// any live ADP advertisement. online controls the initial Online()
// value; callers that don't know the live state should pass false.
func (r *Registry) Restore(
	entityID protocol.EntityID,
	tree *entitymodel.EntityNode,
	compat CompatibilityFlags,
	identifyControlIndex protocol.DescriptorIndex,
	online bool,
	streamConnections map[protocol.DescriptorIndex]StreamInputConnectionInfo,
) *ControlledEntity {
	entity, _ := r.getOrCreate(entityID)
	entity.mu.Lock()
	entity.online = online
	entity.tree = tree
	entity.compat = compat
	entity.identifyControlIndex = identifyControlIndex
	for idx, info := range streamConnections {
		entity.streamConnections[idx] = info
	}
	entity.mu.Unlock()
	return entity
}

// remove deletes entityID from the registry (ADP departure, TTL expiry,
// explicit unload).
func (r *Registry) remove(entityID protocol.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entities, entityID)
}
