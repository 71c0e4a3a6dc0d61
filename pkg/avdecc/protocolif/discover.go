package protocolif

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// DiscoverRemoteEntities emits an ADP ENTITY_DISCOVER frame to the AVDECC
// multicast group, addressed to the given entityID (the null entity ID
// requests every entity to re-advertise) (spec §4.C "discoverRemoteEntities",
// spec §4.D).
func (pi *Interface) DiscoverRemoteEntities(entityID protocol.EntityID) error {
	pdu := &protocol.ADPDU{
		Ethernet: protocol.EthernetHeader{
			DstMAC: protocol.AdpMulticastMAC,
			SrcMAC: pi.transport.MacAddress(),
		},
		MessageType: protocol.AdpEntityDiscover,
		EntityID:    entityID,
	}
	return pi.SendADP(pdu.Serialize())
}
