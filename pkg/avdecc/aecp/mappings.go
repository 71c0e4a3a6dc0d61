package aecp

import (
	"encoding/binary"
	"fmt"

	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// encodeAudioMappings serializes the AddAudioMappings/RemoveAudioMappings
// command-specific payload: descriptorType, descriptorIndex, mapping count,
// reserved, then one 8-byte entry per mapping (spec §3.2 wire layout).
func encodeAudioMappings(descriptorType uint16, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping) []byte {
	buf := make([]byte, 8+8*len(mappings))
	binary.BigEndian.PutUint16(buf[0:2], descriptorType)
	binary.BigEndian.PutUint16(buf[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(mappings)))
	off := 8
	for _, m := range mappings {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(m.StreamIndex))
		binary.BigEndian.PutUint16(buf[off+2:off+4], m.StreamChannel)
		binary.BigEndian.PutUint16(buf[off+4:off+6], m.ClusterOffset)
		binary.BigEndian.PutUint16(buf[off+6:off+8], m.ClusterChannel)
		off += 8
	}
	return buf
}

// AddAudioMappings issues AddAudioMappings against the stream port
// descriptor (descriptorType, descriptorIndex), rejecting locally — without
// transmitting anything — if mappings exceeds the per-command limit (spec
// §4.E "payload size limit": at most MaxAudioMappingsPerCommand entries).
func (c *Client) AddAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType uint16, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb AEMCallback) error {
	if len(mappings) > protocol.MaxAudioMappingsPerCommand {
		return ensureBadArguments("aecp.addaudiomappings",
			fmt.Errorf("%d mappings exceeds the %d-mapping limit", len(mappings), protocol.MaxAudioMappingsPerCommand))
	}
	payload := encodeAudioMappings(descriptorType, descriptorIndex, mappings)
	return c.SendCommand(target, dstMAC, protocol.AemAddAudioMappings, payload, protocolif.TimeoutAEM, cb)
}

// RemoveAudioMappings issues RemoveAudioMappings with the same local
// payload-size guard as AddAudioMappings.
func (c *Client) RemoveAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType uint16, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb AEMCallback) error {
	if len(mappings) > protocol.MaxAudioMappingsPerCommand {
		return ensureBadArguments("aecp.removeaudiomappings",
			fmt.Errorf("%d mappings exceeds the %d-mapping limit", len(mappings), protocol.MaxAudioMappingsPerCommand))
	}
	payload := encodeAudioMappings(descriptorType, descriptorIndex, mappings)
	return c.SendCommand(target, dstMAC, protocol.AemRemoveAudioMappings, payload, protocolif.TimeoutAEM, cb)
}

// GetAudioMap issues GetAudioMap against a stream port descriptor to read
// back the mappings it currently holds, one page (starting at mapIndex) per
// call. entitymodel.DecodeAudioMappings reads the response with the mapping
// count at bytes 2-4; the AddAudioMappings request payload carries its count
// at bytes 4-6 instead, so the two layouts differ.
func (c *Client) GetAudioMap(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType uint16, descriptorIndex protocol.DescriptorIndex, mapIndex uint16, cb AEMCallback) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], descriptorType)
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint16(req[4:6], mapIndex)
	return c.SendCommand(target, dstMAC, protocol.AemGetAudioMap, req, protocolif.TimeoutAEM, cb)
}
