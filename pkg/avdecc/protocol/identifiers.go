// Package protocol implements the AVDECC Frame Codec (spec §4.A): the
// primitive identifiers shared by all three sub-protocols, and
// serialization/deserialization for ADPDU, ACMPDU, and AECPDU frames.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// EntityID is a 64-bit globally unique AVDECC entity identifier.
type EntityID uint64

// NullEntityID is the reserved sentinel representing "null/unknown".
const NullEntityID EntityID = 0

func (e EntityID) String() string { return fmt.Sprintf("0x%016X", uint64(e)) }

// IsNull reports whether e is the null/unknown sentinel.
func (e EntityID) IsNull() bool { return e == NullEntityID }

// MacAddress is a 6-byte Ethernet hardware address.
type MacAddress [6]byte

func (m MacAddress) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether every octet is zero.
func (m MacAddress) IsZero() bool { return m == MacAddress{} }

// DeriveEntityID computes an ephemeral EntityID from a MAC address and a
// 16-bit program ID, per the common AVDECC convention: the upper 24 bits are
// the MAC's OUI, the middle 16 bits are the program ID, and the lower 24
// bits are the MAC's NIC-specific suffix.
func DeriveEntityID(mac MacAddress, programID uint16) EntityID {
	oui := uint64(mac[0])<<16 | uint64(mac[1])<<8 | uint64(mac[2])
	nic := uint64(mac[3])<<16 | uint64(mac[4])<<8 | uint64(mac[5])
	return EntityID(oui<<40 | uint64(programID)<<24 | nic)
}

// DeriveEphemeralEntityID derives an EntityID from mac using a random
// program ID (the first two bytes of a generated UUID), for local entities that
// do not have one assigned by configuration.
func DeriveEphemeralEntityID(mac MacAddress) EntityID {
	id := uuid.New()
	programID := binary.BigEndian.Uint16(id[:2])
	return DeriveEntityID(mac, programID)
}

// DescriptorType enumerates the kind of a descriptor node in the entity
// model tree (spec §3.1). Values follow the IEEE 1722.1 AEM descriptor type
// assignments.
type DescriptorType uint16

const (
	DescriptorEntity              DescriptorType = 0x0000
	DescriptorConfiguration       DescriptorType = 0x0001
	DescriptorAudioUnit           DescriptorType = 0x0002
	DescriptorVideoUnit           DescriptorType = 0x0003
	DescriptorSensorUnit          DescriptorType = 0x0004
	DescriptorStreamInput         DescriptorType = 0x0005
	DescriptorStreamOutput        DescriptorType = 0x0006
	DescriptorJackInput           DescriptorType = 0x0007
	DescriptorJackOutput          DescriptorType = 0x0008
	DescriptorAvbInterface        DescriptorType = 0x0009
	DescriptorClockSource         DescriptorType = 0x000A
	DescriptorMemoryObject        DescriptorType = 0x000B
	DescriptorLocale              DescriptorType = 0x000C
	DescriptorStrings             DescriptorType = 0x000D
	DescriptorStreamPortInput     DescriptorType = 0x000E
	DescriptorStreamPortOutput    DescriptorType = 0x000F
	DescriptorExternalPortInput   DescriptorType = 0x0010
	DescriptorExternalPortOutput  DescriptorType = 0x0011
	DescriptorInternalPortInput   DescriptorType = 0x0012
	DescriptorInternalPortOutput  DescriptorType = 0x0013
	DescriptorAudioCluster        DescriptorType = 0x0014
	DescriptorVideoCluster        DescriptorType = 0x0015
	DescriptorSensorCluster       DescriptorType = 0x0016
	DescriptorAudioMap            DescriptorType = 0x0017
	DescriptorVideoMap            DescriptorType = 0x0018
	DescriptorSensorMap            DescriptorType = 0x0019
	DescriptorControl             DescriptorType = 0x001A
	DescriptorSignalSelector       DescriptorType = 0x001B
	DescriptorMixer                DescriptorType = 0x001C
	DescriptorMatrix                DescriptorType = 0x001D
	DescriptorClockDomain         DescriptorType = 0x0024
	DescriptorControlBlock        DescriptorType = 0x0025
	DescriptorTiming              DescriptorType = 0x0038
	DescriptorPtpInstance         DescriptorType = 0x0039
	DescriptorPtpPort             DescriptorType = 0x003A
	// DescriptorInvalid is the sentinel used where no descriptor type applies.
	DescriptorInvalid DescriptorType = 0xFFFF
)

var descriptorTypeNames = map[DescriptorType]string{
	DescriptorEntity:             "ENTITY",
	DescriptorConfiguration:      "CONFIGURATION",
	DescriptorAudioUnit:          "AUDIO_UNIT",
	DescriptorVideoUnit:          "VIDEO_UNIT",
	DescriptorSensorUnit:         "SENSOR_UNIT",
	DescriptorStreamInput:        "STREAM_INPUT",
	DescriptorStreamOutput:       "STREAM_OUTPUT",
	DescriptorJackInput:          "JACK_INPUT",
	DescriptorJackOutput:         "JACK_OUTPUT",
	DescriptorAvbInterface:       "AVB_INTERFACE",
	DescriptorClockSource:        "CLOCK_SOURCE",
	DescriptorMemoryObject:       "MEMORY_OBJECT",
	DescriptorLocale:             "LOCALE",
	DescriptorStrings:            "STRINGS",
	DescriptorStreamPortInput:    "STREAM_PORT_INPUT",
	DescriptorStreamPortOutput:   "STREAM_PORT_OUTPUT",
	DescriptorExternalPortInput:  "EXTERNAL_PORT_INPUT",
	DescriptorExternalPortOutput: "EXTERNAL_PORT_OUTPUT",
	DescriptorInternalPortInput:  "INTERNAL_PORT_INPUT",
	DescriptorInternalPortOutput: "INTERNAL_PORT_OUTPUT",
	DescriptorAudioCluster:       "AUDIO_CLUSTER",
	DescriptorVideoCluster:       "VIDEO_CLUSTER",
	DescriptorSensorCluster:      "SENSOR_CLUSTER",
	DescriptorAudioMap:           "AUDIO_MAP",
	DescriptorVideoMap:           "VIDEO_MAP",
	DescriptorSensorMap:          "SENSOR_MAP",
	DescriptorControl:            "CONTROL",
	DescriptorSignalSelector:     "SIGNAL_SELECTOR",
	DescriptorMixer:              "MIXER",
	DescriptorMatrix:             "MATRIX",
	DescriptorClockDomain:        "CLOCK_DOMAIN",
	DescriptorControlBlock:       "CONTROL_BLOCK",
	DescriptorTiming:             "TIMING",
	DescriptorPtpInstance:        "PTP_INSTANCE",
	DescriptorPtpPort:            "PTP_PORT",
	DescriptorInvalid:            "INVALID",
}

func (d DescriptorType) String() string {
	if name, ok := descriptorTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DescriptorType(0x%04X)", uint16(d))
}

// DescriptorIndex is a 16-bit index scoped to a (configuration, type) pair.
type DescriptorIndex uint16

// InvalidDescriptorIndex is the sentinel for "no such descriptor".
const InvalidDescriptorIndex DescriptorIndex = 0xFFFF

// IsValid reports whether the index is not the invalid sentinel.
func (d DescriptorIndex) IsValid() bool { return d != InvalidDescriptorIndex }

// StreamIdentification identifies a stream by its owning entity and stream
// descriptor index (spec §3.1). Equality for "not connected" listener state
// ignores the talker side — callers needing that comparison should use
// NotConnected() rather than Go's == operator directly against a zero value.
type StreamIdentification struct {
	EntityID    EntityID
	StreamIndex DescriptorIndex
}

// NotConnected reports whether the identification represents "no talker" —
// a null entity ID regardless of StreamIndex.
func (s StreamIdentification) NotConnected() bool { return s.EntityID.IsNull() }

func (s StreamIdentification) String() string {
	return fmt.Sprintf("%s:stream[%d]", s.EntityID, s.StreamIndex)
}

// ClusterIdentification identifies one channel of an audio cluster.
type ClusterIdentification struct {
	ClusterIndex   DescriptorIndex
	ClusterChannel uint16
}

// AudioMapping is a single static or dynamic stream-channel-to-cluster-channel
// routing entry (spec §3.1, §3.2).
type AudioMapping struct {
	StreamIndex    DescriptorIndex
	StreamChannel  uint16
	ClusterOffset  uint16
	ClusterChannel uint16
}
