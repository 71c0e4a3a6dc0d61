package controller

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// ChannelConnectionIdentification is the resolved three-leg chain spec
// §3.4 describes: a listener stream-channel, routed through a live
// ACMP stream connection, to the talker stream-channel and the talker
// audio-cluster channel it is mapped from.
type ChannelConnectionIdentification struct {
	ListenerStreamIndex   protocol.DescriptorIndex
	ListenerStreamChannel uint16
	TalkerStreamIndex     protocol.DescriptorIndex
	TalkerStreamChannel   uint16
	TalkerClusterIndex    protocol.DescriptorIndex
	TalkerClusterChannel  uint16
}

// ChannelConnection is one listener audio-cluster channel's connection
// state. Redundant is set when the channel is fed by a Milan redundant
// stream pair; non-redundant channels only ever populate Primary.
type ChannelConnection struct {
	Redundant bool
	Primary   *ChannelConnectionIdentification
	Secondary *ChannelConnectionIdentification
}

// IsConnected reports full connection per spec §3.4: both legs resolved
// for a redundant pair, the single leg resolved otherwise.
func (c ChannelConnection) IsConnected() bool {
	if c.Redundant {
		return c.Primary != nil && c.Secondary != nil
	}
	return c.Primary != nil
}

// IsPartiallyConnected reports exactly one leg of a redundant pair
// resolved. Never true for a non-redundant channel.
func (c ChannelConnection) IsPartiallyConnected() bool {
	if !c.Redundant {
		return false
	}
	return (c.Primary != nil) != (c.Secondary != nil)
}

type channelMappingLeg struct {
	StreamIndex    protocol.DescriptorIndex
	StreamChannel  uint16
	ClusterIndex   protocol.DescriptorIndex
	ClusterChannel uint16
}

// collectStreamPortMappings flattens every AudioMapping under every
// AudioUnit's stream ports of the requested direction into the absolute
// cluster index each mapping addresses (BaseCluster + ClusterOffset).
func collectStreamPortMappings(tree *entitymodel.EntityNode, isInput bool) []channelMappingLeg {
	var legs []channelMappingLeg
	for ci := range tree.Configurations {
		config := &tree.Configurations[ci]
		for ui := range config.AudioUnits {
			unit := &config.AudioUnits[ui]
			ports := unit.StreamPortInputs
			if !isInput {
				ports = unit.StreamPortOutputs
			}
			for pi := range ports {
				port := &ports[pi]
				for _, m := range port.Mappings {
					legs = append(legs, channelMappingLeg{
						StreamIndex:    m.StreamIndex,
						StreamChannel:  m.StreamChannel,
						ClusterIndex:   port.BaseCluster + protocol.DescriptorIndex(m.ClusterOffset),
						ClusterChannel: m.ClusterChannel,
					})
				}
			}
		}
	}
	return legs
}

type redundancyRole struct {
	label     string
	isPrimary bool
}

// redundancyVisitor records which StreamInput descriptor indexes belong
// to a Milan redundant pair, and which leg (primary/secondary) each is,
// by riding the same virtual-node synthesis entitymodel.Walk already
// performs for renderers.
type redundancyVisitor struct {
	entitymodel.NoopVisitor
	streamRoles map[protocol.DescriptorIndex]redundancyRole
}

func (v *redundancyVisitor) VisitRedundantStreamGroup(_ *entitymodel.EntityNode, _ *entitymodel.ConfigurationNode, g *entitymodel.RedundantStreamGroup) {
	if !g.IsInput {
		return
	}
	if g.Primary != nil {
		v.streamRoles[g.Primary.Index] = redundancyRole{label: g.Label, isPrimary: true}
	}
	if g.Secondary != nil {
		v.streamRoles[g.Secondary.Index] = redundancyRole{label: g.Label, isPrimary: false}
	}
}

// ResolveChannelConnections builds the full ChannelConnections map (spec
// §4.J.1) for listenerID: for every listener audio-cluster channel fed by
// a stream-port mapping, it follows the live StreamInputConnectionInfo to
// the talker and looks up the talker's matching stream-port mapping.
// Static-vs-dynamic mapping priority is not modeled separately: the
// descriptor tree already carries whichever mapping set the enumeration
// scheduler last read, static defaults merged with dynamic overrides.
func ResolveChannelConnections(reg *Registry, listenerID protocol.EntityID) map[protocol.ClusterIdentification]ChannelConnection {
	listenerGuard, ok := reg.Guard(listenerID)
	if !ok {
		return nil
	}
	listener := listenerGuard.Entity()
	tree := listener.Tree()
	if tree == nil {
		return nil
	}

	rv := &redundancyVisitor{streamRoles: make(map[protocol.DescriptorIndex]redundancyRole)}
	entitymodel.Walk(tree, rv)

	listenerLegs := collectStreamPortMappings(tree, true)
	talkerLegsCache := make(map[protocol.EntityID][]channelMappingLeg)

	result := make(map[protocol.ClusterIdentification]ChannelConnection)
	for _, leg := range listenerLegs {
		key := protocol.ClusterIdentification{ClusterIndex: leg.ClusterIndex, ClusterChannel: leg.ClusterChannel}

		var resolved *ChannelConnectionIdentification
		if conn, ok := listener.StreamConnection(leg.StreamIndex); ok && conn.Connected {
			talkerLegs, cached := talkerLegsCache[conn.TalkerEntityID]
			if !cached {
				if talkerGuard, ok := reg.Guard(conn.TalkerEntityID); ok {
					if talkerTree := talkerGuard.Entity().Tree(); talkerTree != nil {
						talkerLegs = collectStreamPortMappings(talkerTree, false)
					}
				}
				talkerLegsCache[conn.TalkerEntityID] = talkerLegs
			}
			for _, tl := range talkerLegs {
				if tl.StreamIndex == conn.TalkerStream && tl.StreamChannel == leg.StreamChannel {
					resolved = &ChannelConnectionIdentification{
						ListenerStreamIndex:   leg.StreamIndex,
						ListenerStreamChannel: leg.StreamChannel,
						TalkerStreamIndex:     tl.StreamIndex,
						TalkerStreamChannel:   tl.StreamChannel,
						TalkerClusterIndex:    tl.ClusterIndex,
						TalkerClusterChannel:  tl.ClusterChannel,
					}
					break
				}
			}
		}

		existing := result[key]
		if role, isRedundant := rv.streamRoles[leg.StreamIndex]; isRedundant {
			existing.Redundant = true
			if role.isPrimary {
				existing.Primary = resolved
			} else {
				existing.Secondary = resolved
			}
		} else {
			existing.Primary = resolved
		}
		result[key] = existing
	}
	return result
}
