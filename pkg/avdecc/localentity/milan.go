package localentity

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// MilanInfoCallback delivers a decoded GetMilanInfo response.
type MilanInfoCallback func(info protocol.MilanInfo, err error)

// GetMilanInfo queries a Milan-compliant entity's protocol/feature/
// certification version over the Milan vendor-unique (MVU) command set
// (spec §4.G "getMilanInfo").
func (e *LocalEntity) GetMilanInfo(target protocol.EntityID, dstMAC protocol.MacAddress, cb MilanInfoCallback) error {
	pdu := &protocol.VendorUniquePDU{
		AecpCommon: protocol.AecpCommon{
			Ethernet: protocol.EthernetHeader{
				DstMAC: dstMAC,
				SrcMAC: e.pi.LocalMacAddress(),
			},
			MessageType:        protocol.AecpVendorUniqueCommand,
			TargetEntityID:     target,
			ControllerEntityID: e.controllerID,
		},
		ProtocolID:  protocol.MilanProtocolID,
		CommandType: protocol.MilanGetMilanInfo,
	}
	return e.pi.SendAECPCommand(pdu.Serialize(), protocolif.TimeoutVendorUnique, func(response []byte, err error) {
		if err != nil {
			cb(protocol.MilanInfo{}, err)
			return
		}
		resp, perr := protocol.ParseVendorUniquePDU(response)
		if perr != nil {
			cb(protocol.MilanInfo{}, perr)
			return
		}
		info, derr := protocol.DecodeMilanInfo(resp.Payload)
		cb(info, derr)
	})
}

// DynamicInfo is one entry of a batched GetDynamicInfo query result (spec
// §4.G "getDynamicInfo (Milan batched query)"), keyed by the descriptor it
// was requested for. decodeDynamicInfoEntries reads only DescriptorIndex
// and Status (3 bytes per entry); StreamInfo is left at its zero value and
// no counters block is decoded.
type DynamicInfo struct {
	DescriptorIndex protocol.DescriptorIndex
	StreamInfo      StreamInfo
	Status          uint8
}

// DynamicInfoCallback delivers the decoded entries of a GetDynamicInfo
// batched query.
type DynamicInfoCallback func(entries []DynamicInfo, err error)

// GetDynamicInfo issues Milan's batched dynamic-info query for a set of
// stream descriptors in a single AECP round trip, rather than one
// GetStreamInfo per descriptor.
func (e *LocalEntity) GetDynamicInfo(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndexes []protocol.DescriptorIndex, cb DynamicInfoCallback) error {
	payload := make([]byte, 2+2*len(descriptorIndexes))
	payload[0] = byte(len(descriptorIndexes) >> 8)
	payload[1] = byte(len(descriptorIndexes))
	for i, idx := range descriptorIndexes {
		off := 2 + i*2
		payload[off] = byte(idx >> 8)
		payload[off+1] = byte(idx)
	}
	pdu := &protocol.VendorUniquePDU{
		AecpCommon: protocol.AecpCommon{
			Ethernet: protocol.EthernetHeader{
				DstMAC: dstMAC,
				SrcMAC: e.pi.LocalMacAddress(),
			},
			MessageType:        protocol.AecpVendorUniqueCommand,
			TargetEntityID:     target,
			ControllerEntityID: e.controllerID,
		},
		ProtocolID:  protocol.MilanProtocolID,
		CommandType: protocol.MilanMVUCommandType(0x0006), // GET_DYNAMIC_INFO per Milan spec
		Payload:     payload,
	}
	return e.pi.SendAECPCommand(pdu.Serialize(), protocolif.TimeoutVendorUnique, func(response []byte, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		resp, perr := protocol.ParseVendorUniquePDU(response)
		if perr != nil {
			cb(nil, perr)
			return
		}
		cb(decodeDynamicInfoEntries(resp.Payload), nil)
	})
}

func decodeDynamicInfoEntries(payload []byte) []DynamicInfo {
	if len(payload) < 2 {
		return nil
	}
	count := int(payload[0])<<8 | int(payload[1])
	entries := make([]DynamicInfo, 0, count)
	off := 2
	for i := 0; i < count && off+3 <= len(payload); i++ {
		idx := protocol.DescriptorIndex(int(payload[off])<<8 | int(payload[off+1]))
		status := payload[off+2]
		entries = append(entries, DynamicInfo{DescriptorIndex: idx, Status: status})
		off += 3
	}
	return entries
}
