package localentity

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// maxCounters bounds the fixed-size counters block every GetCounters
// response carries, regardless of how many bits countersValidFlags sets
// (spec §6.3 counters block: 32 reserved slots).
const maxCounters = 32

// Counters is the decoded GetCounters response: ValidFlags marks which
// indices of Values are meaningful for this descriptor kind.
type Counters struct {
	DescriptorIndex protocol.DescriptorIndex
	ValidFlags      uint32
	Values          [maxCounters]uint32
}

// CountersCallback delivers a decoded GetCounters response.
type CountersCallback func(counters Counters, err error)

// GetCounters retrieves the block of 32-bit running counters a descriptor
// exposes (stream, AVB interface, clock domain, ...).
func (e *LocalEntity) GetCounters(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, cb CountersCallback) error {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	return e.AECP.SendCommand(target, dstMAC, protocol.AemGetCounters, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(Counters{}, err)
			return
		}
		data := resp.CommandSpecificData
		if len(data) < 8+maxCounters*4 {
			cb(Counters{}, avdeccerrors.NewCodecError("localentity.getcounters", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		c := Counters{
			DescriptorIndex: protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])),
			ValidFlags:      binary.BigEndian.Uint32(data[4:8]),
		}
		for i := 0; i < maxCounters; i++ {
			off := 8 + i*4
			c.Values[i] = binary.BigEndian.Uint32(data[off : off+4])
		}
		cb(c, nil)
	})
}
