package protocol

import (
	"encoding/binary"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
)

// SubtypeAECP is the AVTP subtype identifying an AECPDU (spec §6.3).
const SubtypeAECP = 0xFC

// AecpHeaderLen is the fixed common AECPDU header length: subtype,
// messageType, status, controlDataLength, targetEntityID,
// controllerEntityID, sequenceID (spec §6.3).
const AecpHeaderLen = 23

// MaxAudioMappingsPerCommand bounds AddAudioMappings/RemoveAudioMappings so
// a single command never exceeds the default AECP frame payload (spec §4.E
// "63 mappings under default limits").
const MaxAudioMappingsPerCommand = 63

// AecpMessageType enumerates the AECP message kinds (spec §6.3).
type AecpMessageType uint8

const (
	AecpAemCommand            AecpMessageType = 0
	AecpAemResponse           AecpMessageType = 1
	AecpAddressAccessCommand  AecpMessageType = 2
	AecpAddressAccessResponse AecpMessageType = 3
	AecpVendorUniqueCommand   AecpMessageType = 6
	AecpVendorUniqueResponse  AecpMessageType = 7
)

var aecpMessageTypeNames = map[AecpMessageType]string{
	AecpAemCommand:            "AemCommand",
	AecpAemResponse:           "AemResponse",
	AecpAddressAccessCommand:  "AddressAccessCommand",
	AecpAddressAccessResponse: "AddressAccessResponse",
	AecpVendorUniqueCommand:   "VendorUniqueCommand",
	AecpVendorUniqueResponse:  "VendorUniqueResponse",
}

func (t AecpMessageType) String() string {
	if name, ok := aecpMessageTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// IsResponse reports whether the message type is the response half of a
// command/response pair.
func (t AecpMessageType) IsResponse() bool {
	return t == AecpAemResponse || t == AecpAddressAccessResponse || t == AecpVendorUniqueResponse
}

// AemCommandType enumerates the AEM command set this implementation
// supports (spec §6.3, the "subset required" list).
type AemCommandType uint16

const (
	AemAcquireEntity                     AemCommandType = 0x0000
	AemLockEntity                        AemCommandType = 0x0001
	AemEntityAvailable                   AemCommandType = 0x0002
	AemControllerAvailable               AemCommandType = 0x0003
	AemReadDescriptor                    AemCommandType = 0x0004
	AemWriteDescriptor                   AemCommandType = 0x0005
	AemSetConfiguration                  AemCommandType = 0x0006
	AemGetConfiguration                  AemCommandType = 0x0007
	AemSetStreamFormat                   AemCommandType = 0x0008
	AemGetStreamFormat                   AemCommandType = 0x0009
	AemSetStreamInfo                     AemCommandType = 0x000E
	AemGetStreamInfo                     AemCommandType = 0x000F
	AemSetName                           AemCommandType = 0x0010
	AemGetName                           AemCommandType = 0x0011
	AemSetSamplingRate                   AemCommandType = 0x0012
	AemGetSamplingRate                   AemCommandType = 0x0013
	AemSetClockSource                    AemCommandType = 0x0016
	AemGetClockSource                    AemCommandType = 0x0017
	AemStartStreaming                    AemCommandType = 0x001A
	AemStopStreaming                     AemCommandType = 0x001B
	AemRegisterUnsolicitedNotifications  AemCommandType = 0x0024
	AemDeregisterUnsolicitedNotification AemCommandType = 0x0025
	AemGetAvbInfo                        AemCommandType = 0x0027
	AemGetCounters                       AemCommandType = 0x0029
	AemAddAudioMappings                  AemCommandType = 0x002C
	AemRemoveAudioMappings               AemCommandType = 0x002D
	AemGetAudioMap                       AemCommandType = 0x002E
	AemSetMaxTransitTime                 AemCommandType = 0x0038
	AemGetMaxTransitTime                 AemCommandType = 0x0039
	AemGetDynamicInfo                    AemCommandType = 0x004B
)

var aemCommandTypeNames = map[AemCommandType]string{
	AemAcquireEntity:                     "AcquireEntity",
	AemLockEntity:                        "LockEntity",
	AemEntityAvailable:                   "EntityAvailable",
	AemControllerAvailable:               "ControllerAvailable",
	AemReadDescriptor:                    "ReadDescriptor",
	AemWriteDescriptor:                   "WriteDescriptor",
	AemSetConfiguration:                  "SetConfiguration",
	AemGetConfiguration:                  "GetConfiguration",
	AemSetStreamFormat:                   "SetStreamFormat",
	AemGetStreamFormat:                   "GetStreamFormat",
	AemSetStreamInfo:                     "SetStreamInfo",
	AemGetStreamInfo:                     "GetStreamInfo",
	AemSetName:                           "SetName",
	AemGetName:                           "GetName",
	AemSetSamplingRate:                   "SetSamplingRate",
	AemGetSamplingRate:                   "GetSamplingRate",
	AemSetClockSource:                    "SetClockSource",
	AemGetClockSource:                    "GetClockSource",
	AemStartStreaming:                    "StartStreaming",
	AemStopStreaming:                     "StopStreaming",
	AemRegisterUnsolicitedNotifications:  "RegisterUnsolicitedNotifications",
	AemDeregisterUnsolicitedNotification: "DeregisterUnsolicitedNotifications",
	AemGetAvbInfo:                        "GetAvbInfo",
	AemGetCounters:                       "GetCounters",
	AemAddAudioMappings:                  "AddAudioMappings",
	AemRemoveAudioMappings:               "RemoveAudioMappings",
	AemGetAudioMap:                       "GetAudioMap",
	AemSetMaxTransitTime:                 "SetMaxTransitTime",
	AemGetMaxTransitTime:                 "GetMaxTransitTime",
	AemGetDynamicInfo:                    "GetDynamicInfo",
}

func (c AemCommandType) String() string {
	if name, ok := aemCommandTypeNames[c]; ok {
		return name
	}
	return "Unknown"
}

// AecpCommon is the 23-byte header shared by AEM, Address-Access, and
// Vendor-Unique AECPDUs (spec §6.3).
type AecpCommon struct {
	Ethernet EthernetHeader

	MessageType        AecpMessageType
	Status             uint8 // AemStatus wire value; see internal/errors.AemStatus
	TargetEntityID     EntityID
	ControllerEntityID EntityID
	SequenceID         uint16
}

// AEMPDU is a fully decoded AEM command or response (spec §6.3).
type AEMPDU struct {
	AecpCommon

	Unsolicited         bool
	CommandType         AemCommandType
	CommandSpecificData []byte
}

func decodeHeader(data []byte) (AecpCommon, []byte, error) {
	if len(data) < EthernetHeaderLen+AecpHeaderLen {
		return AecpCommon{}, nil, avdeccerrors.NewCodecError("aecpdu.parse", avdeccerrors.DeserializationIncompleteFrame, nil)
	}
	eth, _, err := DecodeEthernetHeader(data)
	if err != nil {
		return AecpCommon{}, nil, err
	}
	p := data[EthernetHeaderLen:]
	if p[0] != SubtypeAECP {
		return AecpCommon{}, nil, avdeccerrors.NewCodecError("aecpdu.parse", avdeccerrors.DeserializationUnknownSubtype, nil)
	}
	c := AecpCommon{
		Ethernet:           eth,
		MessageType:        AecpMessageType(p[1]),
		Status:             p[2],
		TargetEntityID:     EntityID(binary.BigEndian.Uint64(p[5:13])),
		ControllerEntityID: EntityID(binary.BigEndian.Uint64(p[13:21])),
		SequenceID:         binary.BigEndian.Uint16(p[21:23]),
	}

	// controlDataLength bounds the real payload; trailing bytes beyond it
	// are Ethernet minimum-frame padding (spec §4.A), not frame content.
	controlDataLength := int(binary.BigEndian.Uint16(p[3:5]))
	end := 5 + controlDataLength
	if end < AecpHeaderLen {
		return AecpCommon{}, nil, avdeccerrors.NewCodecError("aecpdu.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	if end > len(p) {
		end = len(p)
	}
	return c, p[AecpHeaderLen:end], nil
}

// Serialize writes the full Ethernet+AEMPDU frame, padded to the minimum
// Ethernet frame length if necessary.
func (a *AEMPDU) Serialize() []byte {
	bodyLen := 2 + len(a.CommandSpecificData)
	buf := make([]byte, EthernetHeaderLen+AecpHeaderLen+bodyLen)

	p := buf[EthernetHeaderLen:]
	p[0] = SubtypeAECP
	p[1] = byte(a.MessageType)
	p[2] = a.Status
	binary.BigEndian.PutUint16(p[3:5], uint16(AecpHeaderLen-5+bodyLen))
	binary.BigEndian.PutUint64(p[5:13], uint64(a.TargetEntityID))
	binary.BigEndian.PutUint64(p[13:21], uint64(a.ControllerEntityID))
	binary.BigEndian.PutUint16(p[21:23], a.SequenceID)

	uBitAndCommand := uint16(a.CommandType) & 0x7FFF
	if a.Unsolicited {
		uBitAndCommand |= 0x8000
	}
	binary.BigEndian.PutUint16(p[23:25], uBitAndCommand)
	copy(p[25:], a.CommandSpecificData)

	return PadToMinimumFrame(buf)
}

// ParseAEMPDU decodes a full Ethernet+AEMPDU frame. It never panics on
// malformed input, returning a CodecError classified per spec §4.A.
func ParseAEMPDU(data []byte) (*AEMPDU, error) {
	common, rest, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if common.MessageType != AecpAemCommand && common.MessageType != AecpAemResponse {
		return nil, avdeccerrors.NewCodecError("aempdu.parse", avdeccerrors.DeserializationInvalidValue, nil)
	}
	if len(rest) < 2 {
		return nil, avdeccerrors.NewCodecError("aempdu.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	uBitAndCommand := binary.BigEndian.Uint16(rest[0:2])
	a := &AEMPDU{
		AecpCommon:          common,
		Unsolicited:         uBitAndCommand&0x8000 != 0,
		CommandType:         AemCommandType(uBitAndCommand & 0x7FFF),
		CommandSpecificData: append([]byte(nil), rest[2:]...),
	}
	return a, nil
}

// AddressAccessMode enumerates the read/write/execute modes of an
// Address-Access TLV (spec §6.3).
type AddressAccessMode uint8

const (
	AddressAccessRead    AddressAccessMode = 0
	AddressAccessWrite   AddressAccessMode = 1
	AddressAccessExecute AddressAccessMode = 2
)

// AddressAccessTLV is one read/write/execute entry within an
// AddressAccessPDU.
type AddressAccessTLV struct {
	Mode    AddressAccessMode
	Address uint64
	Data    []byte
}

// AddressAccessPDU is a fully decoded Address-Access command or response.
type AddressAccessPDU struct {
	AecpCommon
	TLVs []AddressAccessTLV
}

// Serialize writes the full Ethernet+AddressAccessPDU frame.
func (a *AddressAccessPDU) Serialize() []byte {
	bodyLen := 2
	for _, tlv := range a.TLVs {
		bodyLen += 2 + 8 + 2 + len(tlv.Data)
	}
	buf := make([]byte, EthernetHeaderLen+AecpHeaderLen+bodyLen)
	p := buf[EthernetHeaderLen:]
	p[0] = SubtypeAECP
	p[1] = byte(a.MessageType)
	p[2] = a.Status
	binary.BigEndian.PutUint16(p[3:5], uint16(AecpHeaderLen-5+bodyLen))
	binary.BigEndian.PutUint64(p[5:13], uint64(a.TargetEntityID))
	binary.BigEndian.PutUint64(p[13:21], uint64(a.ControllerEntityID))
	binary.BigEndian.PutUint16(p[21:23], a.SequenceID)
	binary.BigEndian.PutUint16(p[23:25], uint16(len(a.TLVs)))

	off := 25
	for _, tlv := range a.TLVs {
		binary.BigEndian.PutUint16(p[off:off+2], uint16(tlv.Mode)<<12|uint16(len(tlv.Data)))
		off += 2
		binary.BigEndian.PutUint64(p[off:off+8], tlv.Address)
		off += 8
		binary.BigEndian.PutUint16(p[off:off+2], uint16(len(tlv.Data)))
		off += 2
		copy(p[off:], tlv.Data)
		off += len(tlv.Data)
	}
	return PadToMinimumFrame(buf)
}

// ParseAddressAccessPDU decodes a full Ethernet+AddressAccessPDU frame.
func ParseAddressAccessPDU(data []byte) (*AddressAccessPDU, error) {
	common, rest, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if common.MessageType != AecpAddressAccessCommand && common.MessageType != AecpAddressAccessResponse {
		return nil, avdeccerrors.NewCodecError("addressaccess.parse", avdeccerrors.DeserializationInvalidValue, nil)
	}
	if len(rest) < 2 {
		return nil, avdeccerrors.NewCodecError("addressaccess.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	count := binary.BigEndian.Uint16(rest[0:2])
	a := &AddressAccessPDU{AecpCommon: common}
	off := 2
	for i := 0; i < int(count); i++ {
		if len(rest) < off+12 {
			return nil, avdeccerrors.NewCodecError("addressaccess.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
		}
		modeAndLen := binary.BigEndian.Uint16(rest[off : off+2])
		address := binary.BigEndian.Uint64(rest[off+2 : off+10])
		length := binary.BigEndian.Uint16(rest[off+10 : off+12])
		off += 12
		if len(rest) < off+int(length) {
			return nil, avdeccerrors.NewCodecError("addressaccess.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
		}
		tlv := AddressAccessTLV{
			Mode:    AddressAccessMode(modeAndLen >> 12),
			Address: address,
			Data:    append([]byte(nil), rest[off:off+int(length)]...),
		}
		off += int(length)
		a.TLVs = append(a.TLVs, tlv)
	}
	return a, nil
}

// MilanProtocolID is the Milan vendor-unique protocol identifier carried in
// the leading 6 bytes of a VendorUnique AECPDU's payload (spec §6.3).
const MilanProtocolID = 0x001B92

// MilanMVUCommandType enumerates the Milan MVU command subset (spec §6.3).
type MilanMVUCommandType uint16

const (
	MilanGetMilanInfo MilanMVUCommandType = 0x0000
)

// MilanInfo is the response payload of GetMilanInfo (spec §6.3).
type MilanInfo struct {
	ProtocolVersion      uint32
	FeaturesFlags        uint32
	CertificationVersion uint32
}

// VendorUniquePDU is a fully decoded Vendor-Unique command or response,
// including the Milan MVU subset identified by MilanProtocolID.
type VendorUniquePDU struct {
	AecpCommon
	ProtocolID  uint64 // only the low 48 bits are meaningful on the wire
	CommandType MilanMVUCommandType
	Payload     []byte
}

// Serialize writes the full Ethernet+VendorUniquePDU frame.
func (v *VendorUniquePDU) Serialize() []byte {
	bodyLen := 6 + 2 + len(v.Payload)
	buf := make([]byte, EthernetHeaderLen+AecpHeaderLen+bodyLen)
	p := buf[EthernetHeaderLen:]
	p[0] = SubtypeAECP
	p[1] = byte(v.MessageType)
	p[2] = v.Status
	binary.BigEndian.PutUint16(p[3:5], uint16(AecpHeaderLen-5+bodyLen))
	binary.BigEndian.PutUint64(p[5:13], uint64(v.TargetEntityID))
	binary.BigEndian.PutUint64(p[13:21], uint64(v.ControllerEntityID))
	binary.BigEndian.PutUint16(p[21:23], v.SequenceID)

	protoBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(protoBytes, v.ProtocolID)
	copy(p[23:29], protoBytes[2:8]) // low 48 bits only
	binary.BigEndian.PutUint16(p[29:31], uint16(v.CommandType))
	copy(p[31:], v.Payload)

	return PadToMinimumFrame(buf)
}

// ParseVendorUniquePDU decodes a full Ethernet+VendorUniquePDU frame.
func ParseVendorUniquePDU(data []byte) (*VendorUniquePDU, error) {
	common, rest, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}
	if common.MessageType != AecpVendorUniqueCommand && common.MessageType != AecpVendorUniqueResponse {
		return nil, avdeccerrors.NewCodecError("vendorunique.parse", avdeccerrors.DeserializationInvalidValue, nil)
	}
	if len(rest) < 8 {
		return nil, avdeccerrors.NewCodecError("vendorunique.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	protoBytes := make([]byte, 8)
	copy(protoBytes[2:8], rest[0:6])
	v := &VendorUniquePDU{
		AecpCommon:  common,
		ProtocolID:  binary.BigEndian.Uint64(protoBytes),
		CommandType: MilanMVUCommandType(binary.BigEndian.Uint16(rest[6:8])),
		Payload:     append([]byte(nil), rest[8:]...),
	}
	return v, nil
}

// DecodeMilanInfo parses a GetMilanInfo response payload.
func DecodeMilanInfo(payload []byte) (MilanInfo, error) {
	if len(payload) < 12 {
		return MilanInfo{}, avdeccerrors.NewCodecError("milaninfo.parse", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	return MilanInfo{
		ProtocolVersion:      binary.BigEndian.Uint32(payload[0:4]),
		FeaturesFlags:        binary.BigEndian.Uint32(payload[4:8]),
		CertificationVersion: binary.BigEndian.Uint32(payload[8:12]),
	}, nil
}

// EncodeMilanInfo serializes a GetMilanInfo response payload.
func EncodeMilanInfo(info MilanInfo) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], info.ProtocolVersion)
	binary.BigEndian.PutUint32(payload[4:8], info.FeaturesFlags)
	binary.BigEndian.PutUint32(payload[8:12], info.CertificationVersion)
	return payload
}
