// Package adp implements the ADP state machine (spec §4.D): advertising
// local entities on a fixed schedule and tracking remote entities with a
// per-interface valid-time TTL.
package adp

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// AdvertiseConfig is the static and slowly-changing information one local
// entity advertises in every EntityAvailable (spec §6.1 field list).
// AvailableIndex is managed by the Advertiser, not the caller.
type AdvertiseConfig struct {
	EntityID               protocol.EntityID
	EntityModelID          uint64
	EntityCapabilities     protocol.EntityCapabilities
	TalkerStreamSources    uint16
	TalkerCapabilities     protocol.TalkerCapabilities
	ListenerStreamSinks    uint16
	ListenerCapabilities   protocol.ListenerCapabilities
	ControllerCapabilities protocol.ControllerCapabilities
	GptpGrandmasterID      uint64
	GptpDomainNumber       uint8
	IdentifyControlIndex   uint16
	InterfaceIndex         uint16
	AssociationID          uint64

	// ValidTime is the advertised TTL; re-advertisement happens at
	// ValidTime/2 (spec §4.D).
	ValidTime time.Duration
}

// Advertiser runs the local-side half of the ADP state machine for one
// local entity on one Protocol Interface: periodic EntityAvailable,
// EntityDeparting on Stop, and answering EntityDiscover.
type Advertiser struct {
	pi  *protocolif.Interface
	mu  sync.Mutex
	cfg AdvertiseConfig

	availableIndex uint32

	unregister func()
	timer      *time.Timer
	stopped    atomic.Bool
}

// NewAdvertiser creates an Advertiser; call Start to begin advertising.
func NewAdvertiser(pi *protocolif.Interface, cfg AdvertiseConfig) *Advertiser {
	if cfg.ValidTime <= 0 {
		cfg.ValidTime = 62 * time.Second
	}
	return &Advertiser{pi: pi, cfg: cfg}
}

// Start registers the EntityDiscover responder and emits the first
// EntityAvailable, then schedules re-advertisement every ValidTime/2.
func (a *Advertiser) Start() {
	a.unregister = a.pi.ObserveADP(a.onADPFrame)
	a.advertise()
}

// Stop emits EntityDeparting and cancels re-advertisement. Idempotent.
func (a *Advertiser) Stop() {
	if !a.stopped.CompareAndSwap(false, true) {
		return
	}
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.mu.Unlock()
	if a.unregister != nil {
		a.unregister()
	}
	a.send(protocol.AdpEntityDeparting)
}

// Update applies mutate to the advertised configuration, bumps
// AvailableIndex, and immediately reissues EntityAvailable (spec §4.D
// "incremented on every field change or reissue").
func (a *Advertiser) Update(mutate func(*AdvertiseConfig)) {
	a.mu.Lock()
	mutate(&a.cfg)
	a.mu.Unlock()
	a.advertise()
}

func (a *Advertiser) advertise() {
	atomic.AddUint32(&a.availableIndex, 1)
	a.send(protocol.AdpEntityAvailable)

	a.mu.Lock()
	interval := a.cfg.ValidTime / 2
	a.mu.Unlock()
	if interval <= 0 {
		interval = 31 * time.Second
	}

	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = time.AfterFunc(interval, func() {
		if a.stopped.Load() {
			return
		}
		_ = a.pi.Executor().Submit(a.advertise)
	})
	a.mu.Unlock()
}

func (a *Advertiser) send(messageType protocol.AdpMessageType) {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	pdu := &protocol.ADPDU{
		Ethernet: protocol.EthernetHeader{
			DstMAC: protocol.AdpMulticastMAC,
			SrcMAC: a.pi.LocalMacAddress(),
		},
		MessageType:            messageType,
		ValidTime:              validTimeUnits(cfg.ValidTime),
		EntityID:                cfg.EntityID,
		EntityModelID:           cfg.EntityModelID,
		EntityCapabilities:      uint32(cfg.EntityCapabilities),
		TalkerStreamSources:     cfg.TalkerStreamSources,
		TalkerCapabilities:      uint16(cfg.TalkerCapabilities),
		ListenerStreamSinks:     cfg.ListenerStreamSinks,
		ListenerCapabilities:    uint16(cfg.ListenerCapabilities),
		ControllerCapabilities:  uint32(cfg.ControllerCapabilities),
		AvailableIndex:          atomic.LoadUint32(&a.availableIndex),
		GptpGrandmasterID:       cfg.GptpGrandmasterID,
		GptpDomainNumber:        cfg.GptpDomainNumber,
		IdentifyControlIndex:    cfg.IdentifyControlIndex,
		InterfaceIndex:          cfg.InterfaceIndex,
		AssociationID:           cfg.AssociationID,
	}
	_ = a.pi.SendADP(pdu.Serialize())
}

// onADPFrame answers EntityDiscover frames addressed to the null entity ID
// or to this advertiser's entity (spec §4.D).
func (a *Advertiser) onADPFrame(frame []byte) {
	adpdu, err := protocol.ParseADPDU(frame)
	if err != nil || adpdu.MessageType != protocol.AdpEntityDiscover {
		return
	}
	a.mu.Lock()
	mine := a.cfg.EntityID
	a.mu.Unlock()
	if adpdu.EntityID.IsNull() || adpdu.EntityID == mine {
		a.send(protocol.AdpEntityAvailable)
	}
}

// validTimeUnits converts a duration to the wire ValidTime field, which is
// expressed in units of 2 seconds (spec §6.1).
func validTimeUnits(d time.Duration) uint8 {
	units := int64(d/time.Second) / 2
	if units <= 0 {
		return 1
	}
	if units > 0xFF {
		return 0xFF
	}
	return uint8(units)
}
