package protocol

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
)

// SubtypeADP is the AVTP subtype identifying an ADPDU (spec §6.1).
const SubtypeADP = 0xFA

// adpControlDataLength is the literal value the wire format's
// controlDataLength field carries for every ADPDU (spec §6.1), independent
// of the actual byte count consumed by the fields below it.
const adpControlDataLength = 56

// ADPDULen is the total ADPDU payload length following the Ethernet header,
// computed from the field table in spec §6.1 (offset 68 + 8-byte
// associationID - offset 14).
const ADPDULen = 62

// AdpMessageType enumerates the ADP message kinds (spec §6.1).
type AdpMessageType uint8

const (
	AdpEntityAvailable AdpMessageType = 0
	AdpEntityDeparting AdpMessageType = 1
	AdpEntityDiscover  AdpMessageType = 2
)

func (t AdpMessageType) String() string {
	switch t {
	case AdpEntityAvailable:
		return "EntityAvailable"
	case AdpEntityDeparting:
		return "EntityDeparting"
	case AdpEntityDiscover:
		return "EntityDiscover"
	default:
		return "Unknown"
	}
}

// ADPDU is the fully decoded Advertise/Discover frame (spec §6.1).
type ADPDU struct {
	Ethernet EthernetHeader

	MessageType AdpMessageType
	ValidTime   uint8 // units of 2 seconds; TTL = ValidTime*2 seconds

	EntityID               EntityID
	EntityModelID          uint64
	EntityCapabilities     uint32
	TalkerStreamSources    uint16
	TalkerCapabilities     uint16
	ListenerStreamSinks    uint16
	ListenerCapabilities   uint16
	ControllerCapabilities uint32
	AvailableIndex         uint32
	GptpGrandmasterID      uint64
	GptpDomainNumber       uint8
	IdentifyControlIndex   uint16
	InterfaceIndex         uint16
	AssociationID          uint64
}

// AdpMulticastMAC is the well-known AVDECC multicast destination address
// ADP frames are sent to (spec §6.1).
var AdpMulticastMAC = MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}

// Serialize writes the full Ethernet+ADPDU frame, padded to the minimum
// Ethernet frame length if necessary.
func (a *ADPDU) Serialize() []byte {
	buf := make([]byte, EthernetHeaderLen+ADPDULen)
	copy(buf, a.Ethernet.Encode())

	p := buf[EthernetHeaderLen:]
	p[0] = SubtypeADP
	p[1] = byte(a.MessageType)<<4 | (a.ValidTime & 0x0F)
	binary.BigEndian.PutUint16(p[2:4], adpControlDataLength)
	binary.BigEndian.PutUint64(p[4:12], uint64(a.EntityID))
	binary.BigEndian.PutUint64(p[12:20], a.EntityModelID)
	binary.BigEndian.PutUint32(p[20:24], a.EntityCapabilities)
	binary.BigEndian.PutUint16(p[24:26], a.TalkerStreamSources)
	binary.BigEndian.PutUint16(p[26:28], a.TalkerCapabilities)
	binary.BigEndian.PutUint16(p[28:30], a.ListenerStreamSinks)
	binary.BigEndian.PutUint16(p[30:32], a.ListenerCapabilities)
	binary.BigEndian.PutUint32(p[32:36], a.ControllerCapabilities)
	binary.BigEndian.PutUint32(p[36:40], a.AvailableIndex)
	binary.BigEndian.PutUint64(p[40:48], a.GptpGrandmasterID)
	p[48] = a.GptpDomainNumber
	p[49] = 0 // reserved
	binary.BigEndian.PutUint16(p[50:52], a.IdentifyControlIndex)
	binary.BigEndian.PutUint16(p[52:54], a.InterfaceIndex)
	binary.BigEndian.PutUint64(p[54:62], a.AssociationID)

	return PadToMinimumFrame(buf)
}

// ParseADPDU decodes a full Ethernet+ADPDU frame. It never panics on
// malformed input, returning a CodecError classified per spec §4.A.
func ParseADPDU(data []byte) (*ADPDU, error) {
	if len(data) < EthernetHeaderLen+ADPDULen {
		return nil, avdeccerrors.NewCodecError("adpdu.parse", avdeccerrors.DeserializationIncompleteFrame, nil)
	}
	eth, _, err := DecodeEthernetHeader(data)
	if err != nil {
		return nil, err
	}
	p := data[EthernetHeaderLen:]
	if p[0] != SubtypeADP {
		return nil, avdeccerrors.NewCodecError("adpdu.parse", avdeccerrors.DeserializationUnknownSubtype, nil)
	}
	if len(p) < ADPDULen {
		return nil, avdeccerrors.NewCodecError("adpdu.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}

	a := &ADPDU{
		Ethernet:               eth,
		MessageType:            AdpMessageType(p[1] >> 4),
		ValidTime:              p[1] & 0x0F,
		EntityID:               EntityID(binary.BigEndian.Uint64(p[4:12])),
		EntityModelID:          binary.BigEndian.Uint64(p[12:20]),
		EntityCapabilities:     binary.BigEndian.Uint32(p[20:24]),
		TalkerStreamSources:    binary.BigEndian.Uint16(p[24:26]),
		TalkerCapabilities:     binary.BigEndian.Uint16(p[26:28]),
		ListenerStreamSinks:    binary.BigEndian.Uint16(p[28:30]),
		ListenerCapabilities:   binary.BigEndian.Uint16(p[30:32]),
		ControllerCapabilities: binary.BigEndian.Uint32(p[32:36]),
		AvailableIndex:         binary.BigEndian.Uint32(p[36:40]),
		GptpGrandmasterID:      binary.BigEndian.Uint64(p[40:48]),
		GptpDomainNumber:       p[48],
		IdentifyControlIndex:   binary.BigEndian.Uint16(p[50:52]),
		InterfaceIndex:         binary.BigEndian.Uint16(p[52:54]),
		AssociationID:          binary.BigEndian.Uint64(p[54:62]),
	}
	return a, nil
}
