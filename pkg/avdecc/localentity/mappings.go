package localentity

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/aecp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// AddStreamPortInputAudioMappings adds dynamic audio mappings to a stream
// port input descriptor, subject to aecp's per-command mapping-count
// guard.
func (e *LocalEntity) AddStreamPortInputAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb aecp.AEMCallback) error {
	return e.AECP.AddAudioMappings(target, dstMAC, uint16(protocol.DescriptorStreamPortInput), descriptorIndex, mappings, cb)
}

// AddStreamPortOutputAudioMappings adds dynamic audio mappings to a
// stream port output descriptor.
func (e *LocalEntity) AddStreamPortOutputAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb aecp.AEMCallback) error {
	return e.AECP.AddAudioMappings(target, dstMAC, uint16(protocol.DescriptorStreamPortOutput), descriptorIndex, mappings, cb)
}

// RemoveStreamPortInputAudioMappings removes dynamic audio mappings from
// a stream port input descriptor.
func (e *LocalEntity) RemoveStreamPortInputAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb aecp.AEMCallback) error {
	return e.AECP.RemoveAudioMappings(target, dstMAC, uint16(protocol.DescriptorStreamPortInput), descriptorIndex, mappings, cb)
}

// RemoveStreamPortOutputAudioMappings removes dynamic audio mappings from
// a stream port output descriptor.
func (e *LocalEntity) RemoveStreamPortOutputAudioMappings(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mappings []protocol.AudioMapping, cb aecp.AEMCallback) error {
	return e.AECP.RemoveAudioMappings(target, dstMAC, uint16(protocol.DescriptorStreamPortOutput), descriptorIndex, mappings, cb)
}

// GetStreamPortInputAudioMap reads one page of a stream port input's
// currently configured mappings, starting at mapIndex.
func (e *LocalEntity) GetStreamPortInputAudioMap(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mapIndex uint16, cb aecp.AEMCallback) error {
	return e.AECP.GetAudioMap(target, dstMAC, uint16(protocol.DescriptorStreamPortInput), descriptorIndex, mapIndex, cb)
}

// GetStreamPortOutputAudioMap reads one page of a stream port output's
// currently configured mappings, starting at mapIndex.
func (e *LocalEntity) GetStreamPortOutputAudioMap(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, mapIndex uint16, cb aecp.AEMCallback) error {
	return e.AECP.GetAudioMap(target, dstMAC, uint16(protocol.DescriptorStreamPortOutput), descriptorIndex, mapIndex, cb)
}
