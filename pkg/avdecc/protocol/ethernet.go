package protocol

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
)

// EtherTypeAVTP is the EtherType for AVTP/AVDECC frames (spec §4.A).
const EtherTypeAVTP = 0x22F0

// EthernetHeaderLen is the fixed 14-byte Ethernet II header size (dst MAC,
// src MAC, EtherType) that precedes every ADPDU/ACMPDU/AECPDU on the wire.
const EthernetHeaderLen = 14

// MinEthernetFrameLen is the minimum Ethernet frame size (excluding the FCS,
// which NICs add/strip in hardware); shorter payloads must be zero-padded.
const MinEthernetFrameLen = 64

// EthernetHeader is the common L2 envelope shared by all three sub-protocols.
type EthernetHeader struct {
	DstMAC MacAddress
	SrcMAC MacAddress
}

// Encode writes the 14-byte Ethernet II header (dst, src, EtherType) using
// gopacket's layers.Ethernet so the wire representation matches what a real
// capture backend would produce.
func (h EthernetHeader) Encode() []byte {
	eth := layers.Ethernet{
		DstMAC:       h.DstMAC[:],
		SrcMAC:       h.SrcMAC[:],
		EthernetType: EtherTypeAVTP,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: false}
	// Ethernet.SerializeTo refuses to run with no following layer when
	// length-fixing is requested; since AVDECC frames carry no payload
	// length in the Ethernet header itself, this is always safe.
	_ = eth.SerializeTo(buf, opts)
	return buf.Bytes()
}

// DecodeEthernetHeader parses the leading 14 bytes of a captured frame. It
// never panics on malformed input.
func DecodeEthernetHeader(data []byte) (EthernetHeader, int, error) {
	if len(data) < EthernetHeaderLen {
		return EthernetHeader{}, 0, avdeccerrors.NewCodecError("ethernet.decode", avdeccerrors.DeserializationIncompleteFrame, nil)
	}
	pkt := gopacket.NewPacket(data[:EthernetHeaderLen], layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return EthernetHeader{}, 0, avdeccerrors.NewCodecError("ethernet.decode", avdeccerrors.DeserializationInvalidValue, nil)
	}
	eth := ethLayer.(*layers.Ethernet)
	var h EthernetHeader
	copy(h.DstMAC[:], eth.DstMAC)
	copy(h.SrcMAC[:], eth.SrcMAC)
	return h, EthernetHeaderLen, nil
}

// PadToMinimumFrame pads data with zero bytes up to MinEthernetFrameLen if
// shorter (spec §4.A "Serialization pads to minimum Ethernet frame").
func PadToMinimumFrame(data []byte) []byte {
	if len(data) >= MinEthernetFrameLen {
		return data
	}
	padded := make([]byte, MinEthernetFrameLen)
	copy(padded, data)
	return padded
}
