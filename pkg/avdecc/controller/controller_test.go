package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

func registerEntity(t *testing.T, reg *Registry, id protocol.EntityID, tree *entitymodel.EntityNode) *ControlledEntity {
	t.Helper()
	entity, _ := reg.getOrCreate(id)
	entity.markOnline(protocol.InvalidDescriptorIndex)
	entity.setEnumerated(tree, CompatibilityIEEE17221, protocol.InvalidDescriptorIndex)
	return entity
}

func TestResolveIdentifyControlAtAdvertisedIndex(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{
			{Controls: []entitymodel.ControlNode{
				{Index: 3, ControlType: entitymodel.ControlTypeIdentify},
			}},
		},
	}
	idx, compliant := ResolveIdentifyControl(tree, 3)
	require.Equal(t, protocol.DescriptorIndex(3), idx)
	require.True(t, compliant)
}

func TestResolveIdentifyControlNonIdentifyAtAdvertisedIndexIsFlagged(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{
			{Controls: []entitymodel.ControlNode{
				{Index: 5, ControlType: entitymodel.ControlTypeLinearInt32},
			}},
		},
	}
	idx, compliant := ResolveIdentifyControl(tree, 5)
	require.Equal(t, protocol.InvalidDescriptorIndex, idx)
	require.False(t, compliant)
}

func TestResolveIdentifyControlFallsBackToSoleIdentifyControl(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{
			{Controls: []entitymodel.ControlNode{
				{Index: 7, ControlType: entitymodel.ControlTypeIdentify},
			}},
		},
	}
	idx, compliant := ResolveIdentifyControl(tree, protocol.InvalidDescriptorIndex)
	require.Equal(t, protocol.DescriptorIndex(7), idx)
	require.False(t, compliant)
}

func TestResolveIdentifyControlNoFallbackWhenAmbiguous(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{
			{Controls: []entitymodel.ControlNode{
				{Index: 7, ControlType: entitymodel.ControlTypeIdentify},
				{Index: 8, ControlType: entitymodel.ControlTypeIdentify},
			}},
		},
	}
	idx, compliant := ResolveIdentifyControl(tree, protocol.InvalidDescriptorIndex)
	require.Equal(t, protocol.InvalidDescriptorIndex, idx)
	require.False(t, compliant)
}

// streamInputEntity builds a one-AudioUnit entity with a single
// StreamPortInput mapping cluster channel 0 of cluster index 0 to
// streamChannel 0 of streamIndex, optionally naming the stream so it
// joins a redundant pair.
func streamInputEntity(streamIndex protocol.DescriptorIndex, name string) *entitymodel.EntityNode {
	return &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{{
			AudioUnits: []entitymodel.AudioUnitNode{{
				StreamPortInputs: []entitymodel.StreamPortNode{{
					BaseCluster: 0,
					Mappings: []protocol.AudioMapping{
						{StreamIndex: streamIndex, StreamChannel: 0, ClusterOffset: 0, ClusterChannel: 0},
					},
				}},
			}},
			StreamInputs: []entitymodel.StreamNode{{Index: streamIndex, Name: name}},
		}},
	}
}

func streamOutputEntity(streamIndex protocol.DescriptorIndex) *entitymodel.EntityNode {
	return &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{{
			AudioUnits: []entitymodel.AudioUnitNode{{
				StreamPortOutputs: []entitymodel.StreamPortNode{{
					BaseCluster: 0,
					Mappings: []protocol.AudioMapping{
						{StreamIndex: streamIndex, StreamChannel: 0, ClusterOffset: 0, ClusterChannel: 0},
					},
				}},
			}},
			StreamOutputs: []entitymodel.StreamNode{{Index: streamIndex}},
		}},
	}
}

func TestResolveChannelConnectionsSimpleConnection(t *testing.T) {
	reg := NewRegistry()
	listener := registerEntity(t, reg, 0x01, streamInputEntity(0, "listener-si0"))
	registerEntity(t, reg, 0x02, streamOutputEntity(0))
	listener.setStreamConnection(0, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 0x02, TalkerStream: 0})

	conns := ResolveChannelConnections(reg, 0x01)
	key := protocol.ClusterIdentification{ClusterIndex: 0, ClusterChannel: 0}
	require.Contains(t, conns, key)
	require.True(t, conns[key].IsConnected())
	require.False(t, conns[key].IsPartiallyConnected())
}

func TestResolveChannelConnectionsRedundantPairPartiallyConnected(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{{
			AudioUnits: []entitymodel.AudioUnitNode{{
				StreamPortInputs: []entitymodel.StreamPortNode{{
					BaseCluster: 0,
					Mappings: []protocol.AudioMapping{
						{StreamIndex: 0, StreamChannel: 0, ClusterOffset: 0, ClusterChannel: 0},
						{StreamIndex: 1, StreamChannel: 0, ClusterOffset: 0, ClusterChannel: 0},
					},
				}},
			}},
			StreamInputs: []entitymodel.StreamNode{
				{Index: 0, Name: "mic_redundant_primary"},
				{Index: 1, Name: "mic_redundant_secondary"},
			},
		}},
	}
	reg := NewRegistry()
	listener := registerEntity(t, reg, 0x07, tree)
	registerEntity(t, reg, 0x08, streamOutputEntity(0))
	registerEntity(t, reg, 0x09, streamOutputEntity(0))
	listener.setStreamConnection(0, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 0x08, TalkerStream: 0})
	listener.setStreamConnection(1, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 0x09, TalkerStream: 0})

	key := protocol.ClusterIdentification{ClusterIndex: 0, ClusterChannel: 0}
	conns := ResolveChannelConnections(reg, 0x07)
	require.True(t, conns[key].IsConnected())
	require.False(t, conns[key].IsPartiallyConnected())

	listener.setStreamConnection(1, StreamInputConnectionInfo{Connected: false})
	conns = ResolveChannelConnections(reg, 0x07)
	require.False(t, conns[key].IsConnected())
	require.True(t, conns[key].IsPartiallyConnected())
	require.NotNil(t, conns[key].Primary)
	require.Nil(t, conns[key].Secondary)
}

func clockDomainTree(sourceType entitymodel.ClockSourceType, streamIndex protocol.DescriptorIndex) *entitymodel.EntityNode {
	return &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{{
			ClockDomains: []entitymodel.ClockDomainNode{{Index: 0, ClockSourceIndex: 0}},
			ClockSources: []entitymodel.ClockSourceNode{{Index: 0, Type: sourceType, StreamIndex: streamIndex}},
		}},
	}
}

func TestResolveMediaClockChainInternal(t *testing.T) {
	reg := NewRegistry()
	registerEntity(t, reg, 0x01, clockDomainTree(entitymodel.ClockSourceInternal, 0))

	chain := ResolveMediaClockChain(reg, 0x01, 0)
	require.Len(t, chain, 1)
	require.Equal(t, MediaClockActive, chain[0].Status)
	require.Equal(t, MediaClockInternal, chain[0].Type)
}

func TestResolveMediaClockChainFollowsStreamConnectionToInternal(t *testing.T) {
	reg := NewRegistry()
	listener := registerEntity(t, reg, 0x01, clockDomainTree(entitymodel.ClockSourceInputStream, 0))
	registerEntity(t, reg, 0x02, clockDomainTree(entitymodel.ClockSourceInternal, 0))
	listener.setStreamConnection(0, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 0x02, TalkerStream: 0})

	chain := ResolveMediaClockChain(reg, 0x01, 0)
	require.Len(t, chain, 2)
	require.Equal(t, MediaClockStreamInput, chain[0].Type)
	require.Equal(t, MediaClockActive, chain[0].Status)
	require.Equal(t, protocol.EntityID(0x02), chain[1].EntityID)
	require.Equal(t, MediaClockActive, chain[1].Status)
	require.Equal(t, MediaClockInternal, chain[1].Type)
}

func TestResolveMediaClockChainStreamNotConnected(t *testing.T) {
	reg := NewRegistry()
	registerEntity(t, reg, 0x01, clockDomainTree(entitymodel.ClockSourceInputStream, 0))

	chain := ResolveMediaClockChain(reg, 0x01, 0)
	require.Len(t, chain, 1)
	require.Equal(t, MediaClockStreamNotConnected, chain[0].Status)
}

func TestResolveMediaClockChainCrossListeningTerminatesRecursive(t *testing.T) {
	reg := NewRegistry()
	e13 := registerEntity(t, reg, 13, clockDomainTree(entitymodel.ClockSourceInputStream, 2))
	e14 := registerEntity(t, reg, 14, clockDomainTree(entitymodel.ClockSourceInputStream, 2))
	e13.setStreamConnection(2, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 14, TalkerStream: 2})
	e14.setStreamConnection(2, StreamInputConnectionInfo{Connected: true, TalkerEntityID: 13, TalkerStream: 2})

	chain := ResolveMediaClockChain(reg, 13, 0)
	require.Len(t, chain, 3)
	require.Equal(t, MediaClockActive, chain[0].Status)
	require.Equal(t, MediaClockActive, chain[1].Status)
	require.Equal(t, MediaClockRecursive, chain[2].Status)
}

func TestResolveMediaClockChainEntityOffline(t *testing.T) {
	reg := NewRegistry()
	chain := ResolveMediaClockChain(reg, 0x99, 0)
	require.Len(t, chain, 1)
	require.Equal(t, MediaClockEntityOffline, chain[0].Status)
}
