// Package entitymodel holds the descriptor tree read out of a remote
// entity during enumeration (spec §4.H), plus the visitor that walks it
// with correct parent context for renderers and resolvers.
package entitymodel

import "github.com/avdecc-go/avdecc/pkg/avdecc/protocol"

// EntityNode is the root descriptor of a tree (spec §6.3 Entity
// descriptor fields relevant to modeling, not wire layout).
type EntityNode struct {
	EntityID              protocol.EntityID
	EntityModelID         uint64
	EntityName            string
	CurrentConfiguration  uint16
	Configurations        []ConfigurationNode
}

// ConfigurationNode groups the descriptor sets active under one
// configuration index.
type ConfigurationNode struct {
	Index         uint16
	Name          string
	AudioUnits    []AudioUnitNode
	StreamInputs  []StreamNode
	StreamOutputs []StreamNode
	AvbInterfaces []AvbInterfaceNode
	ClockSources  []ClockSourceNode
	ClockDomains  []ClockDomainNode
	Locales       []LocaleNode
	MemoryObjects []MemoryObjectNode
	Controls      []ControlNode
	Timings       []TimingNode
}

// AudioUnitNode is an AUDIO_UNIT descriptor and the stream ports it owns.
type AudioUnitNode struct {
	Index             protocol.DescriptorIndex
	Name              string
	SamplingRate      uint32
	StreamPortInputs  []StreamPortNode
	StreamPortOutputs []StreamPortNode
}

// StreamPortNode is a STREAM_PORT_INPUT/OUTPUT descriptor and the audio
// clusters and maps beneath it.
type StreamPortNode struct {
	Index          protocol.DescriptorIndex
	BaseCluster    protocol.DescriptorIndex
	NumberOfClusters uint16
	Clusters       []AudioClusterNode
	Mappings       []protocol.AudioMapping
}

// AudioClusterNode is an AUDIO_CLUSTER descriptor, one addressable
// multi-channel unit within a stream port.
type AudioClusterNode struct {
	Index        protocol.DescriptorIndex
	Name         string
	ChannelCount uint16
}

// StreamNode is a STREAM_INPUT/STREAM_OUTPUT descriptor plus its live
// dynamic state as last read during enumeration.
type StreamNode struct {
	Index        protocol.DescriptorIndex
	Name         string
	CurrentFormat uint64
	Formats       []uint64
	MaxTransitTime uint32
}

// AvbInterfaceNode is an AVB_INTERFACE descriptor.
type AvbInterfaceNode struct {
	Index   protocol.DescriptorIndex
	Name    string
	MacAddress protocol.MacAddress
}

// ClockSourceNode is a CLOCK_SOURCE descriptor.
type ClockSourceNode struct {
	Index protocol.DescriptorIndex
	Name  string
	Type  ClockSourceType
	// StreamIndex names the owning STREAM_INPUT when Type is
	// ClockSourceInputStream; meaningless otherwise.
	StreamIndex protocol.DescriptorIndex
}

// ClockSourceType distinguishes a clock domain's active source kind for
// the media-clock chain resolver (spec §4.J.2).
type ClockSourceType int

const (
	ClockSourceInternal ClockSourceType = iota
	ClockSourceExternal
	ClockSourceInputStream
)

// ClockDomainNode is a CLOCK_DOMAIN descriptor and its active source.
type ClockDomainNode struct {
	Index             protocol.DescriptorIndex
	Name              string
	ClockSourceIndex  protocol.DescriptorIndex
	ClockSources      []protocol.DescriptorIndex
}

// LocaleNode is a LOCALE descriptor; StringsNode holds its STRINGS
// descriptor children.
type LocaleNode struct {
	Index   protocol.DescriptorIndex
	Locale  string
	Strings []StringsNode
}

// StringsNode is a STRINGS descriptor: up to seven localized strings.
type StringsNode struct {
	Index   protocol.DescriptorIndex
	Strings [7]string
}

// MemoryObjectNode is a MEMORY_OBJECT descriptor (firmware images,
// persistent settings blobs, ...).
type MemoryObjectNode struct {
	Index  protocol.DescriptorIndex
	Name   string
	Length uint64
}

// ControlType enumerates the control-value sum type tags relevant to
// discovery (spec §4.H "ControlValues sealed sum type"); only the subset
// this implementation decodes is named, others are carried as RawValue.
type ControlType int

const (
	ControlTypeRaw ControlType = iota
	ControlTypeIdentify
	ControlTypeLinearInt32
)

// ControlValues is a sealed sum type: exactly one of the typed fields is
// meaningful, selected by Type.
type ControlValues struct {
	Type       ControlType
	RawValue   []byte
	LinearInt32 []int32
}

// ControlNode is a CONTROL descriptor.
type ControlNode struct {
	Index      protocol.DescriptorIndex
	Name       string
	ControlType ControlType
	Values     ControlValues
}

// TimingNode is a TIMING descriptor and the PTP instances beneath it
// (spec §4.H "Timing→PtpInstance→PtpPort").
type TimingNode struct {
	Index       protocol.DescriptorIndex
	Name        string
	PtpInstances []PtpInstanceNode
}

// PtpInstanceNode is a PTP_INSTANCE descriptor and its ports.
type PtpInstanceNode struct {
	Index    protocol.DescriptorIndex
	GrandmasterID uint64
	PtpPorts []PtpPortNode
}

// PtpPortNode is a PTP_PORT descriptor.
type PtpPortNode struct {
	Index protocol.DescriptorIndex
	PortNumber uint16
}
