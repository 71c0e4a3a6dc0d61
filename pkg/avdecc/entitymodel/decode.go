package entitymodel

import (
	"encoding/binary"
	"strings"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// aemNameLen is the fixed-width null-terminated name field length used
// throughout AEM descriptors (spec §6.3, same convention as AEM
// SET_NAME/GET_NAME command strings).
const aemNameLen = 64

func decodeFixedName(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

// DecodeStreamInput parses a raw STREAM_INPUT descriptor body as returned
// by ReadDescriptor (spec §6.3 STREAM_INPUT/STREAM_OUTPUT descriptor
// layout, fields relevant to the entity model kept; reserved/AVB-specific
// fields this implementation does not surface are skipped).
func DecodeStreamInput(index protocol.DescriptorIndex, data []byte) (StreamNode, error) {
	return decodeStream(index, data)
}

// DecodeStreamOutput parses a raw STREAM_OUTPUT descriptor body.
func DecodeStreamOutput(index protocol.DescriptorIndex, data []byte) (StreamNode, error) {
	return decodeStream(index, data)
}

func decodeStream(index protocol.DescriptorIndex, data []byte) (StreamNode, error) {
	const headerLen = aemNameLen + 8 + 2
	if len(data) < headerLen {
		return StreamNode{}, avdeccerrors.NewCodecError("entitymodel.decodeStream", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	currentFormat := binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	numFormats := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	formats := make([]uint64, 0, numFormats)
	for i := 0; i < int(numFormats) && off+8 <= len(data); i++ {
		formats = append(formats, binary.BigEndian.Uint64(data[off:off+8]))
		off += 8
	}
	return StreamNode{
		Index:         index,
		Name:          name,
		CurrentFormat: currentFormat,
		Formats:       formats,
	}, nil
}

// DecodeAudioCluster parses a raw AUDIO_CLUSTER descriptor body (spec §6.3
// AUDIO_CLUSTER: name, signal source fields this model does not track,
// channel count).
func DecodeAudioCluster(index protocol.DescriptorIndex, data []byte) (AudioClusterNode, error) {
	const headerLen = aemNameLen + 2
	if len(data) < headerLen {
		return AudioClusterNode{}, avdeccerrors.NewCodecError("entitymodel.decodeAudioCluster", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	channelCount := binary.BigEndian.Uint16(data[aemNameLen : aemNameLen+2])
	return AudioClusterNode{Index: index, Name: name, ChannelCount: channelCount}, nil
}

// DecodeAudioMappings parses a GetAudioMap response body into AudioMapping
// entries: an 8-byte header with the mapping count at bytes 2-4, then 8
// bytes per mapping. The add/removeAudioMappings request payload places its
// count at bytes 4-6, so that layout is not the one read here.
func DecodeAudioMappings(data []byte) ([]protocol.AudioMapping, error) {
	if len(data) < 8 {
		return nil, avdeccerrors.NewCodecError("entitymodel.decodeAudioMappings", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	count := binary.BigEndian.Uint16(data[2:4])
	mappings := make([]protocol.AudioMapping, 0, count)
	off := 8
	for i := 0; i < int(count) && off+8 <= len(data); i++ {
		mappings = append(mappings, protocol.AudioMapping{
			StreamIndex:   protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2])),
			StreamChannel: binary.BigEndian.Uint16(data[off+2 : off+4]),
			ClusterOffset: binary.BigEndian.Uint16(data[off+4 : off+6]),
			ClusterChannel: binary.BigEndian.Uint16(data[off+6 : off+8]),
		})
		off += 8
	}
	return mappings, nil
}

// DecodeAvbInterface parses a raw AVB_INTERFACE descriptor body.
func DecodeAvbInterface(index protocol.DescriptorIndex, data []byte) (AvbInterfaceNode, error) {
	const headerLen = aemNameLen + 6
	if len(data) < headerLen {
		return AvbInterfaceNode{}, avdeccerrors.NewCodecError("entitymodel.decodeAvbInterface", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	var mac protocol.MacAddress
	copy(mac[:], data[aemNameLen:aemNameLen+6])
	return AvbInterfaceNode{Index: index, Name: name, MacAddress: mac}, nil
}

// DecodeClockDomain parses a raw CLOCK_DOMAIN descriptor body: name,
// active clock source index, and the list of clock sources it may select
// from.
func DecodeClockDomain(index protocol.DescriptorIndex, data []byte) (ClockDomainNode, error) {
	const headerLen = aemNameLen + 2 + 2
	if len(data) < headerLen {
		return ClockDomainNode{}, avdeccerrors.NewCodecError("entitymodel.decodeClockDomain", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	activeSource := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	count := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	sources := make([]protocol.DescriptorIndex, 0, count)
	for i := 0; i < int(count) && off+2 <= len(data); i++ {
		sources = append(sources, protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off:off+2])))
		off += 2
	}
	return ClockDomainNode{
		Index:            index,
		Name:             name,
		ClockSourceIndex: activeSource,
		ClockSources:     sources,
	}, nil
}

// AudioUnitSummary is the wire-level subset of an AUDIO_UNIT descriptor the
// scheduler needs to know which contiguous ranges of STREAM_PORT_INPUT/
// OUTPUT descriptors it owns (spec §6.3 AUDIO_UNIT:
// base_stream_input_port/number_of_stream_input_ports, same for output).
type AudioUnitSummary struct {
	Index                protocol.DescriptorIndex
	Name                 string
	SamplingRate         uint32
	BaseStreamPortInput  protocol.DescriptorIndex
	NumStreamPortInputs  uint16
	BaseStreamPortOutput protocol.DescriptorIndex
	NumStreamPortOutputs uint16
}

// DecodeAudioUnit parses a raw AUDIO_UNIT descriptor body.
func DecodeAudioUnit(index protocol.DescriptorIndex, data []byte) (AudioUnitSummary, error) {
	const headerLen = aemNameLen + 4 + 2 + 2 + 2 + 2
	if len(data) < headerLen {
		return AudioUnitSummary{}, avdeccerrors.NewCodecError("entitymodel.decodeAudioUnit", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	samplingRate := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	baseIn := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	numIn := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	baseOut := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	numOut := binary.BigEndian.Uint16(data[off : off+2])
	return AudioUnitSummary{
		Index:                index,
		Name:                 name,
		SamplingRate:         samplingRate,
		BaseStreamPortInput:  baseIn,
		NumStreamPortInputs:  numIn,
		BaseStreamPortOutput: baseOut,
		NumStreamPortOutputs: numOut,
	}, nil
}

// DecodeStreamPort parses a raw STREAM_PORT_INPUT/OUTPUT descriptor body:
// unlike most descriptors it carries no name field, only the base index and
// count of the AUDIO_CLUSTER descriptors it owns.
func DecodeStreamPort(index protocol.DescriptorIndex, data []byte) (StreamPortNode, error) {
	const headerLen = 2 + 2
	if len(data) < headerLen {
		return StreamPortNode{}, avdeccerrors.NewCodecError("entitymodel.decodeStreamPort", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	baseCluster := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[0:2]))
	numberOfClusters := binary.BigEndian.Uint16(data[2:4])
	return StreamPortNode{Index: index, BaseCluster: baseCluster, NumberOfClusters: numberOfClusters}, nil
}

// DecodeClockSource parses a raw CLOCK_SOURCE descriptor body.
func DecodeClockSource(index protocol.DescriptorIndex, data []byte) (ClockSourceNode, error) {
	const headerLen = aemNameLen + 2 + 2
	if len(data) < headerLen {
		return ClockSourceNode{}, avdeccerrors.NewCodecError("entitymodel.decodeClockSource", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	typ := ClockSourceType(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	streamIndex := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	return ClockSourceNode{Index: index, Name: name, Type: typ, StreamIndex: streamIndex}, nil
}

// LocaleSummary is the wire-level subset of a LOCALE descriptor the
// scheduler needs to know which contiguous range of STRINGS descriptors
// belong to it.
type LocaleSummary struct {
	Index       protocol.DescriptorIndex
	Locale      string
	BaseStrings protocol.DescriptorIndex
	NumStrings  uint16
}

// DecodeLocale parses a raw LOCALE descriptor body.
func DecodeLocale(index protocol.DescriptorIndex, data []byte) (LocaleSummary, error) {
	const headerLen = aemNameLen + 2 + 2
	if len(data) < headerLen {
		return LocaleSummary{}, avdeccerrors.NewCodecError("entitymodel.decodeLocale", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	locale := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	numStrings := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	baseStrings := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	return LocaleSummary{Index: index, Locale: locale, BaseStrings: baseStrings, NumStrings: numStrings}, nil
}

// DecodeStrings parses a raw STRINGS descriptor body: seven fixed-width
// localized strings.
func DecodeStrings(index protocol.DescriptorIndex, data []byte) (StringsNode, error) {
	const headerLen = aemNameLen * 7
	if len(data) < headerLen {
		return StringsNode{}, avdeccerrors.NewCodecError("entitymodel.decodeStrings", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	node := StringsNode{Index: index}
	for i := 0; i < 7; i++ {
		node.Strings[i] = decodeFixedName(data[i*aemNameLen : (i+1)*aemNameLen])
	}
	return node, nil
}

// DecodeMemoryObject parses a raw MEMORY_OBJECT descriptor body.
func DecodeMemoryObject(index protocol.DescriptorIndex, data []byte) (MemoryObjectNode, error) {
	const headerLen = aemNameLen + 8
	if len(data) < headerLen {
		return MemoryObjectNode{}, avdeccerrors.NewCodecError("entitymodel.decodeMemoryObject", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	length := binary.BigEndian.Uint64(data[aemNameLen : aemNameLen+8])
	return MemoryObjectNode{Index: index, Name: name, Length: length}, nil
}

// DecodeControl parses a raw CONTROL descriptor body: name, a type tag
// selecting which field of ControlValues is meaningful, then a
// tag-dependent value payload (spec §4.H "ControlValues sealed sum type").
func DecodeControl(index protocol.DescriptorIndex, data []byte) (ControlNode, error) {
	const headerLen = aemNameLen + 2
	if len(data) < headerLen {
		return ControlNode{}, avdeccerrors.NewCodecError("entitymodel.decodeControl", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	typ := ControlType(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2

	values := ControlValues{Type: typ}
	switch typ {
	case ControlTypeLinearInt32:
		if off+2 > len(data) {
			return ControlNode{}, avdeccerrors.NewCodecError("entitymodel.decodeControl", avdeccerrors.DeserializationPayloadTooShort, nil)
		}
		n := binary.BigEndian.Uint16(data[off : off+2])
		off += 2
		vals := make([]int32, 0, n)
		for i := 0; i < int(n) && off+4 <= len(data); i++ {
			vals = append(vals, int32(binary.BigEndian.Uint32(data[off:off+4])))
			off += 4
		}
		values.LinearInt32 = vals
	case ControlTypeIdentify:
		// Identify is a momentary trigger: no payload beyond the type tag.
	default:
		values.RawValue = append([]byte(nil), data[off:]...)
	}
	return ControlNode{Index: index, Name: name, ControlType: typ, Values: values}, nil
}

// TimingSummary is the wire-level subset of a TIMING descriptor the
// scheduler needs to know which contiguous range of PTP_INSTANCE
// descriptors belong to it.
type TimingSummary struct {
	Index           protocol.DescriptorIndex
	Name            string
	BasePtpInstance protocol.DescriptorIndex
	NumPtpInstances uint16
}

// DecodeTiming parses a raw TIMING descriptor body.
func DecodeTiming(index protocol.DescriptorIndex, data []byte) (TimingSummary, error) {
	const headerLen = aemNameLen + 2 + 2
	if len(data) < headerLen {
		return TimingSummary{}, avdeccerrors.NewCodecError("entitymodel.decodeTiming", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	name := decodeFixedName(data[0:aemNameLen])
	off := aemNameLen
	numInstances := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	baseInstance := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	return TimingSummary{Index: index, Name: name, BasePtpInstance: baseInstance, NumPtpInstances: numInstances}, nil
}

// PtpInstanceSummary is the wire-level subset of a PTP_INSTANCE descriptor
// the scheduler needs to know which contiguous range of PTP_PORT
// descriptors belong to it.
type PtpInstanceSummary struct {
	Index         protocol.DescriptorIndex
	GrandmasterID uint64
	BasePtpPort   protocol.DescriptorIndex
	NumPtpPorts   uint16
}

// DecodePtpInstance parses a raw PTP_INSTANCE descriptor body.
func DecodePtpInstance(index protocol.DescriptorIndex, data []byte) (PtpInstanceSummary, error) {
	const headerLen = 8 + 2 + 2
	if len(data) < headerLen {
		return PtpInstanceSummary{}, avdeccerrors.NewCodecError("entitymodel.decodePtpInstance", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	grandmasterID := binary.BigEndian.Uint64(data[0:8])
	off := 8
	numPorts := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	basePort := protocol.DescriptorIndex(binary.BigEndian.Uint16(data[off : off+2]))
	return PtpInstanceSummary{Index: index, GrandmasterID: grandmasterID, BasePtpPort: basePort, NumPtpPorts: numPorts}, nil
}

// DecodePtpPort parses a raw PTP_PORT descriptor body.
func DecodePtpPort(index protocol.DescriptorIndex, data []byte) (PtpPortNode, error) {
	if len(data) < 2 {
		return PtpPortNode{}, avdeccerrors.NewCodecError("entitymodel.decodePtpPort", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	return PtpPortNode{Index: index, PortNumber: binary.BigEndian.Uint16(data[0:2])}, nil
}
