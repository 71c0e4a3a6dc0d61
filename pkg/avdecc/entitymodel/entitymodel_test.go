package entitymodel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

func encodeFixedName(name string) []byte {
	buf := make([]byte, aemNameLen)
	copy(buf, name)
	return buf
}

func TestDecodeStreamInputRoundTrip(t *testing.T) {
	buf := append([]byte{}, encodeFixedName("stream-in-0")...)
	tail := make([]byte, 10)
	binary.BigEndian.PutUint64(tail[0:8], 0x00A0020140000800)
	binary.BigEndian.PutUint16(tail[8:10], 1)
	buf = append(buf, tail...)
	buf = append(buf, make([]byte, 8)...)
	binary.BigEndian.PutUint64(buf[len(buf)-8:], 0x00A0020140000800)

	node, err := DecodeStreamInput(3, buf)
	require.NoError(t, err)
	require.Equal(t, protocol.DescriptorIndex(3), node.Index)
	require.Equal(t, "stream-in-0", node.Name)
	require.Equal(t, uint64(0x00A0020140000800), node.CurrentFormat)
	require.Equal(t, []uint64{0x00A0020140000800}, node.Formats)
}

func TestDecodeStreamInputRejectsShortPayload(t *testing.T) {
	_, err := DecodeStreamInput(0, []byte{0x01, 0x02})
	require.Error(t, err)
}

func TestDecodeAudioClusterRoundTrip(t *testing.T) {
	buf := append([]byte{}, encodeFixedName("cluster-0")...)
	buf = append(buf, 0x00, 0x08)

	node, err := DecodeAudioCluster(1, buf)
	require.NoError(t, err)
	require.Equal(t, "cluster-0", node.Name)
	require.Equal(t, uint16(8), node.ChannelCount)
}

func TestDecodeAudioMappingsRoundTrip(t *testing.T) {
	buf := make([]byte, 8+2*8)
	binary.BigEndian.PutUint16(buf[2:4], 2)
	binary.BigEndian.PutUint16(buf[8:10], 1)
	binary.BigEndian.PutUint16(buf[10:12], 0)
	binary.BigEndian.PutUint16(buf[12:14], 0)
	binary.BigEndian.PutUint16(buf[14:16], 0)
	binary.BigEndian.PutUint16(buf[16:18], 2)
	binary.BigEndian.PutUint16(buf[18:20], 0)
	binary.BigEndian.PutUint16(buf[20:22], 4)
	binary.BigEndian.PutUint16(buf[22:24], 1)

	mappings, err := DecodeAudioMappings(buf)
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	require.Equal(t, protocol.DescriptorIndex(1), mappings[0].StreamIndex)
	require.Equal(t, protocol.DescriptorIndex(2), mappings[1].StreamIndex)
}

func TestDecodeAvbInterfaceRoundTrip(t *testing.T) {
	buf := append([]byte{}, encodeFixedName("eth0")...)
	buf = append(buf, 0x00, 0x1b, 0x21, 0x00, 0x00, 0x01)

	node, err := DecodeAvbInterface(0, buf)
	require.NoError(t, err)
	require.Equal(t, "eth0", node.Name)
	require.Equal(t, protocol.MacAddress{0x00, 0x1b, 0x21, 0x00, 0x00, 0x01}, node.MacAddress)
}

func TestDecodeClockDomainRoundTrip(t *testing.T) {
	buf := append([]byte{}, encodeFixedName("domain-0")...)
	buf = append(buf, 0x00, 0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x01)

	node, err := DecodeClockDomain(0, buf)
	require.NoError(t, err)
	require.Equal(t, protocol.DescriptorIndex(1), node.ClockSourceIndex)
	require.Equal(t, []protocol.DescriptorIndex{0, 1}, node.ClockSources)
}

// recordingVisitor counts visits by kind so Walk's traversal can be
// asserted without a full rendering implementation.
type recordingVisitor struct {
	NoopVisitor
	entities       int
	configurations int
	streamInputs   int
	ptpPorts       int
	redundantGroups []*RedundantStreamGroup
	timingViews    [][]*PtpInstanceNode
}

func (r *recordingVisitor) VisitEntity(*EntityNode)                            { r.entities++ }
func (r *recordingVisitor) VisitConfiguration(*EntityNode, *ConfigurationNode) { r.configurations++ }
func (r *recordingVisitor) VisitStreamInput(*EntityNode, *ConfigurationNode, *StreamNode) {
	r.streamInputs++
}
func (r *recordingVisitor) VisitPtpPort(*EntityNode, *PtpInstanceNode, *PtpPortNode) { r.ptpPorts++ }
func (r *recordingVisitor) VisitRedundantStreamGroup(_ *EntityNode, _ *ConfigurationNode, g *RedundantStreamGroup) {
	r.redundantGroups = append(r.redundantGroups, g)
}
func (r *recordingVisitor) VisitPtpTimingView(_ *EntityNode, instances []*PtpInstanceNode) {
	r.timingViews = append(r.timingViews, instances)
}

func TestWalkVisitsEveryRealNode(t *testing.T) {
	entity := &EntityNode{
		EntityID: protocol.EntityID(0xBEEF),
		Configurations: []ConfigurationNode{
			{
				Index: 0,
				StreamInputs: []StreamNode{
					{Index: 0, Name: "mic_redundant_primary"},
					{Index: 1, Name: "mic_redundant_secondary"},
					{Index: 2, Name: "unrelated"},
				},
				Timings: []TimingNode{
					{
						Index: 0,
						PtpInstances: []PtpInstanceNode{
							{Index: 0, PtpPorts: []PtpPortNode{{Index: 0}, {Index: 1}}},
						},
					},
				},
			},
		},
	}

	rv := &recordingVisitor{}
	Walk(entity, rv)

	require.Equal(t, 1, rv.entities)
	require.Equal(t, 1, rv.configurations)
	require.Equal(t, 3, rv.streamInputs)
	require.Equal(t, 2, rv.ptpPorts)
	require.Len(t, rv.redundantGroups, 1)
	require.Equal(t, "mic", rv.redundantGroups[0].Label)
	require.NotNil(t, rv.redundantGroups[0].Primary)
	require.NotNil(t, rv.redundantGroups[0].Secondary)
	require.Len(t, rv.timingViews, 1)
	require.Len(t, rv.timingViews[0], 1)
}

func TestWalkOmitsTimingViewWhenNoPtpInstances(t *testing.T) {
	entity := &EntityNode{Configurations: []ConfigurationNode{{Index: 0}}}
	rv := &recordingVisitor{}
	Walk(entity, rv)
	require.Empty(t, rv.timingViews)
}

func TestRedundantGroupRoleFollowsIndexNotName(t *testing.T) {
	// The descriptor carrying "_redundant_secondary" has the lower Index
	// here; role assignment must still follow Index (spec §3.2), not the
	// name suffix that only detects the pairing.
	groups := redundantGroups([]StreamNode{
		{Index: 0, Name: "mic_redundant_secondary"},
		{Index: 1, Name: "mic_redundant_primary"},
	}, true)

	require.Len(t, groups, 1)
	require.Equal(t, "mic", groups[0].Label)
	require.Equal(t, protocol.DescriptorIndex(0), groups[0].Primary.Index)
	require.Equal(t, "mic_redundant_secondary", groups[0].Primary.Name)
	require.Equal(t, protocol.DescriptorIndex(1), groups[0].Secondary.Index)
	require.Equal(t, "mic_redundant_primary", groups[0].Secondary.Name)
}
