package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleACMPDU() *ACMPDU {
	return &ACMPDU{
		Ethernet: EthernetHeader{
			DstMAC: AcmpMulticastMAC,
			SrcMAC: MacAddress{0x00, 0x1b, 0x92, 0x11, 0x22, 0x33},
		},
		MessageType:        AcmpConnectRxCommand,
		Status:             AcmpStatusSuccess,
		StreamID:           0x001B92FFFE001111,
		ControllerEntityID: EntityID(0x001B92FFFE002222),
		TalkerEntityID:     EntityID(0x001B92FFFE003333),
		ListenerEntityID:   EntityID(0x001B92FFFE004444),
		TalkerUniqueID:     0,
		ListenerUniqueID:   1,
		StreamDestAddress:  MacAddress{0x91, 0xE0, 0xF0, 0x00, 0x12, 0x34},
		ConnectionCount:    1,
		SequenceID:         7,
		Flags:              AcmpFlagClassB | AcmpFlagSavedState,
		StreamVlanID:       2,
	}
}

func TestACMPDURoundTrip(t *testing.T) {
	original := sampleACMPDU()
	frame := original.Serialize()
	require.GreaterOrEqual(t, len(frame), MinEthernetFrameLen)

	decoded, err := ParseACMPDU(frame)
	require.NoError(t, err)

	require.Equal(t, original.MessageType, decoded.MessageType)
	require.Equal(t, original.Status, decoded.Status)
	require.Equal(t, original.StreamID, decoded.StreamID)
	require.Equal(t, original.ControllerEntityID, decoded.ControllerEntityID)
	require.Equal(t, original.TalkerEntityID, decoded.TalkerEntityID)
	require.Equal(t, original.ListenerEntityID, decoded.ListenerEntityID)
	require.Equal(t, original.TalkerUniqueID, decoded.TalkerUniqueID)
	require.Equal(t, original.ListenerUniqueID, decoded.ListenerUniqueID)
	require.Equal(t, original.StreamDestAddress, decoded.StreamDestAddress)
	require.Equal(t, original.ConnectionCount, decoded.ConnectionCount)
	require.Equal(t, original.SequenceID, decoded.SequenceID)
	require.Equal(t, original.Flags, decoded.Flags)
	require.Equal(t, original.StreamVlanID, decoded.StreamVlanID)
}

func TestACMPDUMessageTypeIsResponse(t *testing.T) {
	require.False(t, AcmpConnectRxCommand.IsResponse())
	require.True(t, AcmpConnectRxResponse.IsResponse())
	require.True(t, AcmpGetTxConnectionResponse.IsResponse())
}

func TestParseACMPDURejectsShortFrame(t *testing.T) {
	_, err := ParseACMPDU(make([]byte, 20))
	require.Error(t, err)
}

func TestParseACMPDURejectsWrongSubtype(t *testing.T) {
	frame := sampleACMPDU().Serialize()
	frame[EthernetHeaderLen] = 0xFA // SubtypeADP, not SubtypeACMP
	_, err := ParseACMPDU(frame)
	require.Error(t, err)
}

func TestAcmpStatusStringUnknownIsReserved(t *testing.T) {
	require.Equal(t, "Reserved", AcmpStatus(20).String())
	require.Equal(t, "NotSupported", AcmpStatusNotSupported.String())
}
