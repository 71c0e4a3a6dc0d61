package localentity

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// StreamFormatCallback delivers a decoded SetStreamFormat/GetStreamFormat
// response: the 64-bit IEC 61883/IIDC stream format value.
type StreamFormatCallback func(descriptorIndex protocol.DescriptorIndex, streamFormat uint64, err error)

func encodeStreamFormatReq(descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, streamFormat uint64, withFormat bool) []byte {
	n := 4
	if withFormat {
		n += 8
	}
	buf := make([]byte, n)
	binary.BigEndian.PutUint16(buf[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(buf[2:4], uint16(descriptorIndex))
	if withFormat {
		binary.BigEndian.PutUint64(buf[4:12], streamFormat)
	}
	return buf
}

func decodeStreamFormatResp(data []byte) (protocol.DescriptorIndex, uint64, error) {
	if len(data) < 12 {
		return 0, 0, avdeccerrors.NewCodecError("localentity.streamformat", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	return protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])), binary.BigEndian.Uint64(data[4:12]), nil
}

// SetStreamFormat sets a stream input/output descriptor's active format.
func (e *LocalEntity) SetStreamFormat(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, streamFormat uint64, cb StreamFormatCallback) error {
	req := encodeStreamFormatReq(descriptorType, descriptorIndex, streamFormat, true)
	return e.AECP.SendCommand(target, dstMAC, protocol.AemSetStreamFormat, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		idx, fmtVal, derr := decodeStreamFormatResp(resp.CommandSpecificData)
		cb(idx, fmtVal, derr)
	})
}

// GetStreamFormat retrieves a stream input/output descriptor's active
// format.
func (e *LocalEntity) GetStreamFormat(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, cb StreamFormatCallback) error {
	req := encodeStreamFormatReq(descriptorType, descriptorIndex, 0, false)
	return e.AECP.SendCommand(target, dstMAC, protocol.AemGetStreamFormat, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		idx, fmtVal, derr := decodeStreamFormatResp(resp.CommandSpecificData)
		cb(idx, fmtVal, derr)
	})
}

// StreamInfoFlags mirror the AEM StreamInfo descriptor's flag bitfield
// (spec §4.G "getStreamInfo").
type StreamInfoFlags uint32

const (
	StreamInfoFlagClassB StreamInfoFlags = 1 << iota
	StreamInfoFlagFastConnect
	StreamInfoFlagSavedState
	StreamInfoFlagStreamingWait
	StreamInfoFlagConnected
)

// StreamInfo is the decoded GetStreamInfo response body.
type StreamInfo struct {
	DescriptorIndex   protocol.DescriptorIndex
	Flags             StreamInfoFlags
	StreamFormat      uint64
	StreamID          uint64
	MsrpAccumLatency  uint32
	StreamDestAddress protocol.MacAddress
	StreamVlanID      uint16
}

// StreamInfoCallback delivers a decoded GetStreamInfo response.
type StreamInfoCallback func(info StreamInfo, err error)

// GetStreamInfo retrieves the live connection/format state of one stream
// input/output descriptor.
func (e *LocalEntity) GetStreamInfo(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex, cb StreamInfoCallback) error {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorType))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	return e.AECP.SendCommand(target, dstMAC, protocol.AemGetStreamInfo, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(StreamInfo{}, err)
			return
		}
		data := resp.CommandSpecificData
		if len(data) < 32 {
			cb(StreamInfo{}, avdeccerrors.NewCodecError("localentity.getstreaminfo", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		info := StreamInfo{
			DescriptorIndex:  protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])),
			Flags:            StreamInfoFlags(binary.BigEndian.Uint32(data[4:8])),
			StreamFormat:     binary.BigEndian.Uint64(data[8:16]),
			StreamID:         binary.BigEndian.Uint64(data[16:24]),
			MsrpAccumLatency: binary.BigEndian.Uint32(data[24:28]),
			StreamVlanID:     binary.BigEndian.Uint16(data[30:32]),
		}
		copy(info.StreamDestAddress[:], data[24:30])
		cb(info, nil)
	})
}

// SamplingRateCallback delivers a decoded SetSamplingRate/GetSamplingRate
// response.
type SamplingRateCallback func(descriptorIndex protocol.DescriptorIndex, samplingRate uint32, err error)

func (e *LocalEntity) samplingRateCommand(cmd protocol.AemCommandType, target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, samplingRate uint32, cb SamplingRateCallback) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint16(req[0:2], uint16(protocol.DescriptorAudioUnit))
	binary.BigEndian.PutUint16(req[2:4], uint16(descriptorIndex))
	binary.BigEndian.PutUint32(req[4:8], samplingRate)
	return e.AECP.SendCommand(target, dstMAC, cmd, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		data := resp.CommandSpecificData
		if len(data) < 8 {
			cb(0, 0, avdeccerrors.NewCodecError("localentity.samplingrate", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		cb(protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])), binary.BigEndian.Uint32(data[4:8]), nil)
	})
}

// SetSamplingRate sets an audio unit descriptor's active sampling rate.
func (e *LocalEntity) SetSamplingRate(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, samplingRate uint32, cb SamplingRateCallback) error {
	return e.samplingRateCommand(protocol.AemSetSamplingRate, target, dstMAC, descriptorIndex, samplingRate, cb)
}

// GetSamplingRate retrieves an audio unit descriptor's active sampling
// rate.
func (e *LocalEntity) GetSamplingRate(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, cb SamplingRateCallback) error {
	return e.samplingRateCommand(protocol.AemGetSamplingRate, target, dstMAC, descriptorIndex, 0, cb)
}

// ClockSourceCallback delivers a decoded SetClockSource/GetClockSource
// response.
type ClockSourceCallback func(descriptorIndex protocol.DescriptorIndex, clockSourceIndex protocol.DescriptorIndex, err error)

func (e *LocalEntity) clockSourceCommand(cmd protocol.AemCommandType, target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex, clockSourceIndex protocol.DescriptorIndex, cb ClockSourceCallback) error {
	req := make([]byte, 4)
	binary.BigEndian.PutUint16(req[0:2], uint16(descriptorIndex))
	binary.BigEndian.PutUint16(req[2:4], uint16(clockSourceIndex))
	return e.AECP.SendCommand(target, dstMAC, cmd, req, protocolif.TimeoutAEM, func(resp *protocol.AEMPDU, err error) {
		if err != nil {
			cb(0, 0, err)
			return
		}
		data := resp.CommandSpecificData
		if len(data) < 4 {
			cb(0, 0, avdeccerrors.NewCodecError("localentity.clocksource", avdeccerrors.DeserializationPayloadTooShort, nil))
			return
		}
		cb(protocol.DescriptorIndex(binary.BigEndian.Uint16(data[0:2])), protocol.DescriptorIndex(binary.BigEndian.Uint16(data[2:4])), nil)
	})
}

// SetClockSource sets a clock domain descriptor's active clock source.
func (e *LocalEntity) SetClockSource(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex, clockSourceIndex protocol.DescriptorIndex, cb ClockSourceCallback) error {
	return e.clockSourceCommand(protocol.AemSetClockSource, target, dstMAC, descriptorIndex, clockSourceIndex, cb)
}

// GetClockSource retrieves a clock domain descriptor's active clock
// source.
func (e *LocalEntity) GetClockSource(target protocol.EntityID, dstMAC protocol.MacAddress, descriptorIndex protocol.DescriptorIndex, cb ClockSourceCallback) error {
	return e.clockSourceCommand(protocol.AemGetClockSource, target, dstMAC, descriptorIndex, 0, cb)
}
