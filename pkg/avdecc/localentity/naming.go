package localentity

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

const aemNameLen = 64

// NameCallback delivers a decoded GetName/SetName response.
type NameCallback func(name string, err error)

func encodeName(name string) [aemNameLen]byte {
	var buf [aemNameLen]byte
	copy(buf[:], name)
	return buf
}

func decodeName(data []byte) string {
	end := len(data)
	for i, b := range data {
		if b == 0 {
			end = i
			break
		}
	}
	return string(data[:end])
}

// SetName sets the nameIndex'th name field of a descriptor (most
// descriptors have exactly one, nameIndex 0; audio unit/stream port
// descriptors expose more).
func (e *LocalEntity) SetName(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, nameIndex uint16, configurationIndex uint16, name string, cb NameCallback) error {
	req := make([]byte, 8+aemNameLen)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint16(req[4:6], nameIndex)
	binary.BigEndian.PutUint16(req[6:8], configurationIndex)
	nameBuf := encodeName(name)
	copy(req[8:], nameBuf[:])
	return e.AECP.SendCommand(target, dstMAC, protocol.AemSetName, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb("", err)
			return
		}
		if len(resp.CommandSpecificData) < 8+aemNameLen {
			cb("", avdeccerrors.NewCodecError("localentity.setname", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		cb(decodeName(resp.CommandSpecificData[8:8+aemNameLen]), nil)
	})
}

// GetName retrieves the nameIndex'th name field of a descriptor.
func (e *LocalEntity) GetName(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, nameIndex uint16, configurationIndex uint16, cb NameCallback) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint16(req[4:6], nameIndex)
	binary.BigEndian.PutUint16(req[6:8], configurationIndex)
	return e.AECP.SendCommand(target, dstMAC, protocol.AemGetName, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb("", err)
			return
		}
		if len(resp.CommandSpecificData) < 8+aemNameLen {
			cb("", avdeccerrors.NewCodecError("localentity.getname", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		cb(decodeName(resp.CommandSpecificData[8:8+aemNameLen]), nil)
	})
}

// MaxTransitTimeCallback delivers a decoded SetMaxTransitTime/
// GetMaxTransitTime response, in nanoseconds.
type MaxTransitTimeCallback func(descriptorIndex protocol.DescriptorIndex, nanoseconds uint32, err error)

func (e *LocalEntity) maxTransitTimeCommand(cmd protocol.AemCommandType, target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, nanoseconds uint32, cb MaxTransitTimeCallback) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint32(req[4:8], nanoseconds)
	return e.AECP.SendCommand(target, dstMAC, cmd, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		data := resp.CommandSpecificData
		if len(data) < 8 {
			cb(0, 0, avdeccerrors.NewCodecError("localentity.maxtransittime", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		cb(protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])), binary.BigEndian.Uint32(data[4:8]), nil)
	})
}

// SetMaxTransitTime sets a stream input descriptor's maximum transit time.
func (e *LocalEntity) SetMaxTransitTime(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, nanoseconds uint32, cb MaxTransitTimeCallback) error {
	return e.maxTransitTimeCommand(protocol.AemSetMaxTransitTime, target, dstMAC, descriptorType, descriptorIndex, nanoseconds, cb)
}

// GetMaxTransitTime retrieves a stream input descriptor's maximum transit
// time.
func (e *LocalEntity) GetMaxTransitTime(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, cb MaxTransitTimeCallback) error {
	return e.maxTransitTimeCommand(protocol.AemGetMaxTransitTime, target, dstMAC, descriptorType, descriptorIndex, 0, cb)
}
