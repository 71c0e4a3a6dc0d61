package controller

import (
	"context"
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/pkg/avdecc/acmp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/adp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/enumeration"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/hooks"
	"github.com/avdecc-go/avdecc/pkg/avdecc/localentity"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// enumerationTimeout bounds the background enumeration Controller kicks
// off for every newly discovered entity.
const enumerationTimeout = 10 * time.Second

// Observer receives controller-level, fully reactive notifications (spec
// §4.J): entity lifecycle plus the two derived computations this package
// resolves on demand and re-announces whenever their inputs change.
type Observer interface {
	OnEntityOnline(entityID protocol.EntityID)
	OnEntityOffline(entityID protocol.EntityID)
	OnEntityUpdated(entityID protocol.EntityID, compat CompatibilityFlags)
	OnChannelConnectionsChanged(entityID protocol.EntityID, connections map[protocol.ClusterIdentification]ChannelConnection)
	OnMediaClockChainChanged(entityID protocol.EntityID, clockDomainIndex protocol.DescriptorIndex, chain []MediaClockChainNode)
}

// Controller ties the entity Registry to ADP discovery, the enumeration
// Scheduler, and ACMP connection sniffing: it is the single point that
// drives every write to a ControlledEntity, all from its Protocol
// Interface's executor (spec §5's single-writer rule).
type Controller struct {
	pi            *protocolif.Interface
	localEntityID protocol.EntityID
	exec          *executor.Executor

	registry *Registry
	sched    *enumeration.Scheduler
	acmpCli  *acmp.Client
	le       *localentity.LocalEntity
	disc     *adp.Discoverer

	unsubscribeACMP func()

	obsMu     sync.Mutex
	observers []Observer

	// hm fires deployment-configured hooks (shell/webhook/stdio) on
	// entity lifecycle and connection events. Nil until SetHookManager
	// is called; every trigger site below tolerates a nil *hooks.Manager.
	hm *hooks.Manager
}

// NewController wires reg (freshly created) to adp discovery on pi, to
// sched's enumeration notifications, and to acmpCli's connection sniffer.
// le issues the AcquireEntity/LockEntity commands AcquireEntity/
// ReleaseEntity/LockEntity/UnlockEntity drive. Start must be called
// before any ADP traffic is observed.
func NewController(pi *protocolif.Interface, localEntityID protocol.EntityID, sched *enumeration.Scheduler, acmpCli *acmp.Client, le *localentity.LocalEntity) *Controller {
	c := &Controller{
		pi:            pi,
		localEntityID: localEntityID,
		exec:          pi.Executor(),
		registry:      NewRegistry(),
		sched:         sched,
		acmpCli:       acmpCli,
		le:            le,
	}
	c.disc = adp.NewDiscoverer(pi, c)
	sched.Observe(c)
	return c
}

// Start begins ADP discovery and ACMP sniffing.
func (c *Controller) Start() {
	c.disc.Start()
	c.unsubscribeACMP = c.acmpCli.ObserveSniffedResponses(c)
}

// Stop tears down discovery and sniffing; the registry contents remain
// readable afterward.
func (c *Controller) Stop() {
	c.disc.Stop()
	if c.unsubscribeACMP != nil {
		c.unsubscribeACMP()
	}
}

// Registry exposes the EntityID → ControlledEntity map for read access.
func (c *Controller) Registry() *Registry { return c.registry }

// SetHookManager wires hm to fire on entity lifecycle, enumeration, and
// connection events from here on. Passing nil disables hook delivery.
func (c *Controller) SetHookManager(hm *hooks.Manager) { c.hm = hm }

// Observe registers obs for controller lifecycle notifications.
func (c *Controller) Observe(obs Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, obs)
}

func (c *Controller) snapshotObservers() []Observer {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	return append([]Observer(nil), c.observers...)
}

// --- adp.Observer ---

func (c *Controller) OnEntityOnline(snap adp.EntitySnapshot) {
	entity, _ := c.registry.getOrCreate(snap.Key.EntityID)
	entity.markOnline(protocol.DescriptorIndex(snap.ADPDU.IdentifyControlIndex))

	for _, o := range c.snapshotObservers() {
		o.OnEntityOnline(snap.Key.EntityID)
	}
	c.hm.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventEntityOnline).WithEntityID(snap.Key.EntityID.String()))

	target := snap.Key.EntityID
	dstMAC := snap.ADPDU.Ethernet.SrcMAC
	_ = c.exec.Submit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), enumerationTimeout)
		defer cancel()
		_, _, _ = c.sched.Enumerate(ctx, target, dstMAC)
	})
}

func (c *Controller) OnEntityUpdate(adp.EntitySnapshot, adp.EntitySnapshot) {}

func (c *Controller) OnEntityOffline(entityID protocol.EntityID) {
	if guard, ok := c.registry.Guard(entityID); ok {
		guard.Entity().markOffline()
	}
	for _, o := range c.snapshotObservers() {
		o.OnEntityOffline(entityID)
	}
	c.hm.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventEntityOffline).WithEntityID(entityID.String()))
	// ADP departure destroys the ControlledEntity record outright (spec
	// §3.6); TTL expiry reaches here the same way since adp.Discoverer
	// reports both as OnEntityOffline.
	c.registry.remove(entityID)
}

func (c *Controller) OnEntityRedundantInterfaceOnline(adp.EntitySnapshot) {}
func (c *Controller) OnEntityRedundantInterfaceOffline(adp.InterfaceKey)  {}

// --- enumeration.Observer ---

func (c *Controller) OnEntityEnumerated(entityID protocol.EntityID, tree *entitymodel.EntityNode, compat enumeration.CompatibilityFlags) {
	entity, _ := c.registry.getOrCreate(entityID)
	full := fromEnumerationFlags(compat)

	resolvedIdentify, ieee17221Identify := ResolveIdentifyControl(tree, entity.advertisedIdentify())
	if !ieee17221Identify {
		full |= CompatibilityIEEE17221Warning
	}

	entity.setEnumerated(tree, full, resolvedIdentify)

	for _, o := range c.snapshotObservers() {
		o.OnEntityUpdated(entityID, full)
	}

	connections := ResolveChannelConnections(c.registry, entityID)
	for _, o := range c.snapshotObservers() {
		o.OnChannelConnectionsChanged(entityID, connections)
	}
	c.refreshMediaClockChains(entityID, tree)
	c.hm.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventEnumerationComplete).WithEntityID(entityID.String()))
}

func (c *Controller) OnEntityQueryError(entityID protocol.EntityID, err error) {
	if entity, ok := c.registry.getOrCreate(entityID); ok {
		entity.flagMisbehaving()
	}
	c.hm.TriggerEvent(context.Background(), *hooks.NewEvent(hooks.EventEnumerationFailed).
		WithEntityID(entityID.String()).WithData("error", err.Error()))
}

func (c *Controller) refreshMediaClockChains(entityID protocol.EntityID, tree *entitymodel.EntityNode) {
	config := currentConfiguration(tree)
	if config == nil {
		return
	}
	for _, domain := range config.ClockDomains {
		chain := ResolveMediaClockChain(c.registry, entityID, domain.Index)
		for _, o := range c.snapshotObservers() {
			o.OnMediaClockChainChanged(entityID, domain.Index, chain)
		}
	}
}

// --- acmp.ResponseSniffer ---

func (c *Controller) OnConnectResponseSniffed(resp *protocol.ACMPDU) {
	if resp.Status != protocol.AcmpStatusSuccess {
		return
	}
	c.recordStreamConnection(resp.ListenerEntityID, resp.ListenerUniqueID, resp.TalkerEntityID, resp.TalkerUniqueID, true)
}

func (c *Controller) OnDisconnectResponseSniffed(resp *protocol.ACMPDU) {
	if resp.Status != protocol.AcmpStatusSuccess {
		return
	}
	c.recordStreamConnection(resp.ListenerEntityID, resp.ListenerUniqueID, resp.TalkerEntityID, resp.TalkerUniqueID, false)
}

func (c *Controller) OnGetListenerStreamStateResponseSniffed(resp *protocol.ACMPDU) {
	if resp.Status != protocol.AcmpStatusSuccess {
		return
	}
	connected := resp.ConnectionCount > 0 && !resp.TalkerEntityID.IsNull()
	c.recordStreamConnection(resp.ListenerEntityID, resp.ListenerUniqueID, resp.TalkerEntityID, resp.TalkerUniqueID, connected)
}

func (c *Controller) recordStreamConnection(listenerID protocol.EntityID, listenerStream protocol.DescriptorIndex, talkerID protocol.EntityID, talkerStream protocol.DescriptorIndex, connected bool) {
	guard, ok := c.registry.Guard(listenerID)
	if !ok {
		return
	}
	entity := guard.Entity()
	info := StreamInputConnectionInfo{Connected: connected, TalkerEntityID: talkerID, TalkerStream: talkerStream}
	entity.setStreamConnection(listenerStream, info)

	for _, o := range c.snapshotObservers() {
		o.OnEntityUpdated(listenerID, entity.Compatibility())
	}
	connections := ResolveChannelConnections(c.registry, listenerID)
	for _, o := range c.snapshotObservers() {
		o.OnChannelConnectionsChanged(listenerID, connections)
	}
	if tree := entity.Tree(); tree != nil {
		c.refreshMediaClockChains(listenerID, tree)
	}

	eventType := hooks.EventStreamDisconnected
	if connected {
		eventType = hooks.EventStreamConnected
	}
	c.hm.TriggerEvent(context.Background(), *hooks.NewEvent(eventType).
		WithEntityID(listenerID.String()).
		WithData("talker_entity_id", talkerID.String()).
		WithData("listener_stream", uint16(listenerStream)).
		WithData("talker_stream", uint16(talkerStream)))
}
