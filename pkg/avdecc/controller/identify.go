package controller

import (
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
)

func currentConfiguration(tree *entitymodel.EntityNode) *entitymodel.ConfigurationNode {
	for ci := range tree.Configurations {
		if tree.Configurations[ci].Index == tree.CurrentConfiguration {
			return &tree.Configurations[ci]
		}
	}
	if len(tree.Configurations) > 0 {
		return &tree.Configurations[0]
	}
	return nil
}

// ResolveIdentifyControl implements the ADP identifyControlIndex
// resolution order of spec §4.J.3: a configuration-level Control
// descriptor of type Identify at the advertised index is authoritative
// and IEEE 1722.1-compliant. A Jack-level Identify control at that index
// would also be compliant, but Jack descriptors are not part of the
// modeled tree here, so that leg of the lookup structurally never
// matches; the advertised index resolving to anything else at
// configuration scope (the AudioUnit-level case §9(a) calls out as
// non-conformant) is treated identically: flagged non-17221-compliant
// and not exposed. When the advertised index does not resolve to any
// configuration-level control at all and exactly one Configuration-level
// Identify Control exists, that control is adopted as a fallback, also
// flagged non-compliant.
//
// The returned bool reports IEEE 1722.1 compliance of the resolution
// itself (whether the controller should flag the entity
// CompatibilityIEEE17221Warning), not whether a usable index was found.
func ResolveIdentifyControl(tree *entitymodel.EntityNode, advertisedIndex protocol.DescriptorIndex) (protocol.DescriptorIndex, bool) {
	config := currentConfiguration(tree)
	if config == nil {
		return protocol.InvalidDescriptorIndex, false
	}

	if advertisedIndex.IsValid() {
		for _, c := range config.Controls {
			if c.Index != advertisedIndex {
				continue
			}
			if c.ControlType == entitymodel.ControlTypeIdentify {
				return advertisedIndex, true
			}
			return protocol.InvalidDescriptorIndex, false
		}
	}

	var fallback protocol.DescriptorIndex
	count := 0
	for _, c := range config.Controls {
		if c.ControlType == entitymodel.ControlTypeIdentify {
			fallback = c.Index
			count++
		}
	}
	if count == 1 {
		return fallback, false
	}
	return protocol.InvalidDescriptorIndex, false
}
