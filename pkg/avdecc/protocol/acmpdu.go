package protocol

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
)

// SubtypeACMP is the AVTP subtype identifying an ACMPDU (spec §6.2).
const SubtypeACMP = 0xFB

// acmpControlDataLength is the literal value the wire format's
// controlDataLength field carries for every ACMPDU (spec §6.2), independent
// of the actual byte count consumed by the fields below it.
const acmpControlDataLength = 44

// ACMPDULen is the total ACMPDU payload length following the Ethernet
// header, computed from the field layout in spec §6.2.
const ACMPDULen = 56

// AcmpMessageType enumerates the seven ACMP commands/responses (spec §4.F).
// Each command has a paired response at messageType+1.
type AcmpMessageType uint8

const (
	AcmpConnectTxCommand        AcmpMessageType = 0
	AcmpConnectTxResponse       AcmpMessageType = 1
	AcmpDisconnectTxCommand     AcmpMessageType = 2
	AcmpDisconnectTxResponse    AcmpMessageType = 3
	AcmpGetTxStateCommand       AcmpMessageType = 4
	AcmpGetTxStateResponse      AcmpMessageType = 5
	AcmpConnectRxCommand        AcmpMessageType = 6
	AcmpConnectRxResponse       AcmpMessageType = 7
	AcmpDisconnectRxCommand     AcmpMessageType = 8
	AcmpDisconnectRxResponse    AcmpMessageType = 9
	AcmpGetRxStateCommand       AcmpMessageType = 10
	AcmpGetRxStateResponse      AcmpMessageType = 11
	AcmpGetTxConnectionCommand  AcmpMessageType = 12
	AcmpGetTxConnectionResponse AcmpMessageType = 13
)

var acmpMessageTypeNames = map[AcmpMessageType]string{
	AcmpConnectTxCommand:        "ConnectTxCommand",
	AcmpConnectTxResponse:       "ConnectTxResponse",
	AcmpDisconnectTxCommand:     "DisconnectTxCommand",
	AcmpDisconnectTxResponse:    "DisconnectTxResponse",
	AcmpGetTxStateCommand:       "GetTxStateCommand",
	AcmpGetTxStateResponse:      "GetTxStateResponse",
	AcmpConnectRxCommand:        "ConnectRxCommand",
	AcmpConnectRxResponse:       "ConnectRxResponse",
	AcmpDisconnectRxCommand:     "DisconnectRxCommand",
	AcmpDisconnectRxResponse:    "DisconnectRxResponse",
	AcmpGetRxStateCommand:       "GetRxStateCommand",
	AcmpGetRxStateResponse:      "GetRxStateResponse",
	AcmpGetTxConnectionCommand:  "GetTxConnectionCommand",
	AcmpGetTxConnectionResponse: "GetTxConnectionResponse",
}

func (t AcmpMessageType) String() string {
	if name, ok := acmpMessageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// IsResponse reports whether the message type's low bit marks it as the
// response half of a command/response pair.
func (t AcmpMessageType) IsResponse() bool { return t&0x01 == 1 }

// AcmpStatus is the ACMP-specific status code carried in every response
// (spec §4.F, §7).
type AcmpStatus uint8

const (
	AcmpStatusSuccess AcmpStatus = iota
	AcmpStatusListenerUnknownID
	AcmpStatusTalkerUnknownID
	AcmpStatusTalkerDestMacFail
	AcmpStatusTalkerNoStreamIndex
	AcmpStatusTalkerNoBandwidth
	AcmpStatusTalkerExclusive
	AcmpStatusListenerTalkerTimeout
	AcmpStatusListenerExclusive
	AcmpStatusStateUnavailable
	AcmpStatusNotConnected
	AcmpStatusNoSuchConnection
	AcmpStatusCouldNotSendMessage
	AcmpStatusTalkerMisbehaving
	AcmpStatusListenerMisbehaving
	AcmpStatusControllerNotAuthorized
	AcmpStatusIncompatibleRequest
	AcmpStatusListenerInvalidConnection
	AcmpStatusNotSupported AcmpStatus = 31
)

func (s AcmpStatus) String() string {
	switch s {
	case AcmpStatusSuccess:
		return "Success"
	case AcmpStatusListenerUnknownID:
		return "ListenerUnknownID"
	case AcmpStatusTalkerUnknownID:
		return "TalkerUnknownID"
	case AcmpStatusTalkerDestMacFail:
		return "TalkerDestMacFail"
	case AcmpStatusTalkerNoStreamIndex:
		return "TalkerNoStreamIndex"
	case AcmpStatusTalkerNoBandwidth:
		return "TalkerNoBandwidth"
	case AcmpStatusTalkerExclusive:
		return "TalkerExclusive"
	case AcmpStatusListenerTalkerTimeout:
		return "ListenerTalkerTimeout"
	case AcmpStatusListenerExclusive:
		return "ListenerExclusive"
	case AcmpStatusStateUnavailable:
		return "StateUnavailable"
	case AcmpStatusNotConnected:
		return "NotConnected"
	case AcmpStatusNoSuchConnection:
		return "NoSuchConnection"
	case AcmpStatusCouldNotSendMessage:
		return "CouldNotSendMessage"
	case AcmpStatusTalkerMisbehaving:
		return "TalkerMisbehaving"
	case AcmpStatusListenerMisbehaving:
		return "ListenerMisbehaving"
	case AcmpStatusControllerNotAuthorized:
		return "ControllerNotAuthorized"
	case AcmpStatusIncompatibleRequest:
		return "IncompatibleRequest"
	case AcmpStatusListenerInvalidConnection:
		return "ListenerInvalidConnection"
	case AcmpStatusNotSupported:
		return "NotSupported"
	default:
		return "Reserved"
	}
}

// AcmpFlags are the bitfield flags carried in every ACMPDU (spec §6.2).
type AcmpFlags uint16

const (
	AcmpFlagClassB        AcmpFlags = 1 << 0
	AcmpFlagFastConnect   AcmpFlags = 1 << 1
	AcmpFlagSavedState    AcmpFlags = 1 << 2
	AcmpFlagStreamingWait AcmpFlags = 1 << 3
	AcmpFlagEncrypted     AcmpFlags = 1 << 4
	AcmpFlagClassA        AcmpFlags = 1 << 5
)

// ACMPDU is the fully decoded connection-management frame (spec §6.2).
type ACMPDU struct {
	Ethernet EthernetHeader

	MessageType AcmpMessageType
	Status      AcmpStatus

	StreamID           uint64
	ControllerEntityID EntityID
	TalkerEntityID     EntityID
	ListenerEntityID   EntityID
	TalkerUniqueID     DescriptorIndex
	ListenerUniqueID   DescriptorIndex
	StreamDestAddress  MacAddress
	ConnectionCount    uint16
	SequenceID         uint16
	Flags              AcmpFlags
	StreamVlanID       uint16
}

// AcmpMulticastMAC is the well-known AVDECC multicast address ACMP frames
// are sent to (spec §4.F "all ACMP frames are multicast").
var AcmpMulticastMAC = MacAddress{0x91, 0xE0, 0xF0, 0x01, 0x00, 0x00}

// Serialize writes the full Ethernet+ACMPDU frame, padded to the minimum
// Ethernet frame length if necessary.
func (a *ACMPDU) Serialize() []byte {
	buf := make([]byte, EthernetHeaderLen+ACMPDULen)
	copy(buf, a.Ethernet.Encode())

	p := buf[EthernetHeaderLen:]
	p[0] = SubtypeACMP
	p[1] = byte(a.MessageType)
	binary.BigEndian.PutUint16(p[2:4], acmpControlDataLength)
	p[4] = byte(a.Status)
	p[5] = 0 // reserved
	binary.BigEndian.PutUint64(p[6:14], a.StreamID)
	binary.BigEndian.PutUint64(p[14:22], uint64(a.ControllerEntityID))
	binary.BigEndian.PutUint64(p[22:30], uint64(a.TalkerEntityID))
	binary.BigEndian.PutUint64(p[30:38], uint64(a.ListenerEntityID))
	binary.BigEndian.PutUint16(p[38:40], uint16(a.TalkerUniqueID))
	binary.BigEndian.PutUint16(p[40:42], uint16(a.ListenerUniqueID))
	copy(p[42:48], a.StreamDestAddress[:])
	binary.BigEndian.PutUint16(p[48:50], a.ConnectionCount)
	binary.BigEndian.PutUint16(p[50:52], a.SequenceID)
	binary.BigEndian.PutUint16(p[52:54], uint16(a.Flags))
	binary.BigEndian.PutUint16(p[54:56], a.StreamVlanID)

	return PadToMinimumFrame(buf)
}

// ParseACMPDU decodes a full Ethernet+ACMPDU frame. It never panics on
// malformed input, returning a CodecError classified per spec §4.A.
func ParseACMPDU(data []byte) (*ACMPDU, error) {
	if len(data) < EthernetHeaderLen+ACMPDULen {
		return nil, avdeccerrors.NewCodecError("acmpdu.parse", avdeccerrors.DeserializationIncompleteFrame, nil)
	}
	eth, _, err := DecodeEthernetHeader(data)
	if err != nil {
		return nil, err
	}
	p := data[EthernetHeaderLen:]
	if p[0] != SubtypeACMP {
		return nil, avdeccerrors.NewCodecError("acmpdu.parse", avdeccerrors.DeserializationUnknownSubtype, nil)
	}
	if len(p) < ACMPDULen {
		return nil, avdeccerrors.NewCodecError("acmpdu.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}

	a := &ACMPDU{
		Ethernet:           eth,
		MessageType:        AcmpMessageType(p[1]),
		Status:             AcmpStatus(p[4]),
		StreamID:           binary.BigEndian.Uint64(p[6:14]),
		ControllerEntityID: EntityID(binary.BigEndian.Uint64(p[14:22])),
		TalkerEntityID:     EntityID(binary.BigEndian.Uint64(p[22:30])),
		ListenerEntityID:   EntityID(binary.BigEndian.Uint64(p[30:38])),
		TalkerUniqueID:     DescriptorIndex(binary.BigEndian.Uint16(p[38:40])),
		ListenerUniqueID:   DescriptorIndex(binary.BigEndian.Uint16(p[40:42])),
		ConnectionCount:    binary.BigEndian.Uint16(p[48:50]),
		SequenceID:         binary.BigEndian.Uint16(p[50:52]),
		Flags:              AcmpFlags(binary.BigEndian.Uint16(p[52:54])),
		StreamVlanID:       binary.BigEndian.Uint16(p[54:56]),
	}
	copy(a.StreamDestAddress[:], p[42:48])
	return a, nil
}
