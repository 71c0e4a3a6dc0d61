package aecp

import (
	"sync"

	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// UnsolicitedObserver receives unsolicited AEM notifications (spec §4.E
// "unsolicited notifications"), plus a gap report whenever the per-entity
// sequence counter skips, indicating one or more notifications were lost.
type UnsolicitedObserver interface {
	OnUnsolicitedNotification(entityID protocol.EntityID, pdu *protocol.AEMPDU)
	OnUnsolicitedGap(entityID protocol.EntityID, lost uint32)
}

// unsolicitedTracker follows one remote entity's unsolicited sequence
// counter. The entity assigns SequenceID independently for unsolicited
// traffic; a jump larger than one means notifications were dropped before
// reaching this controller.
type unsolicitedTracker struct {
	mu          sync.Mutex
	hasSeen     bool
	expectedSeq uint16
	lost        uint64
}

// observe records one received unsolicited sequence number and reports how
// many notifications appear to have been lost since the previous one (0 if
// none, or if this is the first notification seen for the entity).
func (u *unsolicitedTracker) observe(seq uint16) uint32 {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.hasSeen {
		u.hasSeen = true
		u.expectedSeq = seq + 1
		return 0
	}
	gap := uint32(seq - u.expectedSeq)
	u.expectedSeq = seq + 1
	if gap > 0 {
		u.lost += uint64(gap)
	}
	return gap
}

// LostCount returns the running total of unsolicited notifications this
// client believes were dropped in transit for entityID.
func (c *Client) LostCount(entityID protocol.EntityID) uint64 {
	c.unsolMu.Lock()
	t, ok := c.unsol[entityID]
	c.unsolMu.Unlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lost
}

func (c *Client) trackerFor(entityID protocol.EntityID) *unsolicitedTracker {
	c.unsolMu.Lock()
	defer c.unsolMu.Unlock()
	t, ok := c.unsol[entityID]
	if !ok {
		t = &unsolicitedTracker{}
		c.unsol[entityID] = t
	}
	return t
}

// ObserveUnsolicited subscribes obs to every unsolicited AEM notification
// this interface receives, from any remote entity. The returned func
// cancels the subscription.
func (c *Client) ObserveUnsolicited(obs UnsolicitedObserver) func() {
	return c.pi.ObserveAEM(func(frame []byte) {
		pdu, err := protocol.ParseAEMPDU(frame)
		if err != nil || !pdu.Unsolicited || pdu.MessageType != protocol.AecpAemResponse {
			return
		}
		tracker := c.trackerFor(pdu.TargetEntityID)
		if gap := tracker.observe(pdu.SequenceID); gap > 0 {
			obs.OnUnsolicitedGap(pdu.TargetEntityID, gap)
		}
		obs.OnUnsolicitedNotification(pdu.TargetEntityID, pdu)
	})
}

// RegisterUnsolicitedNotifications asks target to start sending this
// controller unsolicited notifications for subsequent state changes.
func (c *Client) RegisterUnsolicitedNotifications(target protocol.EntityID, dstMAC protocol.MacAddress, cb AEMCallback) error {
	return c.SendCommand(target, dstMAC, protocol.AemRegisterUnsolicitedNotifications, nil, protocolif.TimeoutAEM, cb)
}

// DeregisterUnsolicitedNotification asks target to stop sending this
// controller unsolicited notifications.
func (c *Client) DeregisterUnsolicitedNotification(target protocol.EntityID, dstMAC protocol.MacAddress, cb AEMCallback) error {
	return c.SendCommand(target, dstMAC, protocol.AemDeregisterUnsolicitedNotification, nil, protocolif.TimeoutAEM, cb)
}
