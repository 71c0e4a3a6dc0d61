package entitymodel

// Visitor receives callbacks for every node in a tree walk, each typed by
// its parent-chain context (spec §4.H: "EntityModelVisitor interface with
// distinct visit shapes for each parent-chain/node-kind combination").
// Implementations may embed NoopVisitor to only override the methods they
// care about.
type Visitor interface {
	VisitEntity(entity *EntityNode)
	VisitConfiguration(entity *EntityNode, config *ConfigurationNode)
	VisitAudioUnit(entity *EntityNode, config *ConfigurationNode, unit *AudioUnitNode)
	VisitStreamPort(entity *EntityNode, config *ConfigurationNode, unit *AudioUnitNode, port *StreamPortNode, isInput bool)
	VisitAudioCluster(entity *EntityNode, port *StreamPortNode, cluster *AudioClusterNode)
	VisitStreamInput(entity *EntityNode, config *ConfigurationNode, stream *StreamNode)
	VisitStreamOutput(entity *EntityNode, config *ConfigurationNode, stream *StreamNode)
	VisitAvbInterface(entity *EntityNode, config *ConfigurationNode, iface *AvbInterfaceNode)
	VisitClockSource(entity *EntityNode, config *ConfigurationNode, source *ClockSourceNode)
	VisitClockDomain(entity *EntityNode, config *ConfigurationNode, domain *ClockDomainNode)
	VisitLocale(entity *EntityNode, config *ConfigurationNode, locale *LocaleNode)
	VisitStrings(entity *EntityNode, locale *LocaleNode, strs *StringsNode)
	VisitMemoryObject(entity *EntityNode, config *ConfigurationNode, obj *MemoryObjectNode)
	VisitControl(entity *EntityNode, config *ConfigurationNode, control *ControlNode)
	VisitTiming(entity *EntityNode, config *ConfigurationNode, timing *TimingNode)
	VisitPtpInstance(entity *EntityNode, timing *TimingNode, instance *PtpInstanceNode)
	VisitPtpPort(entity *EntityNode, instance *PtpInstanceNode, port *PtpPortNode)

	// VisitRedundantStreamGroup is a virtual node synthesized from
	// primary/secondary stream pairs that share a redundancy group
	// identity; it has no corresponding AEM descriptor.
	VisitRedundantStreamGroup(entity *EntityNode, config *ConfigurationNode, group *RedundantStreamGroup)

	// VisitPtpTimingView is a virtual node presenting every PtpInstance
	// across the whole entity flattened under one synthetic timing root,
	// for renderers that want a cross-configuration PTP summary.
	VisitPtpTimingView(entity *EntityNode, instances []*PtpInstanceNode)
}

// NoopVisitor implements Visitor with empty bodies; embed it to override
// only the methods a particular walker needs.
type NoopVisitor struct{}

func (NoopVisitor) VisitEntity(*EntityNode)                                                           {}
func (NoopVisitor) VisitConfiguration(*EntityNode, *ConfigurationNode)                                {}
func (NoopVisitor) VisitAudioUnit(*EntityNode, *ConfigurationNode, *AudioUnitNode)                     {}
func (NoopVisitor) VisitStreamPort(*EntityNode, *ConfigurationNode, *AudioUnitNode, *StreamPortNode, bool) {}
func (NoopVisitor) VisitAudioCluster(*EntityNode, *StreamPortNode, *AudioClusterNode)                  {}
func (NoopVisitor) VisitStreamInput(*EntityNode, *ConfigurationNode, *StreamNode)                      {}
func (NoopVisitor) VisitStreamOutput(*EntityNode, *ConfigurationNode, *StreamNode)                     {}
func (NoopVisitor) VisitAvbInterface(*EntityNode, *ConfigurationNode, *AvbInterfaceNode)                {}
func (NoopVisitor) VisitClockSource(*EntityNode, *ConfigurationNode, *ClockSourceNode)                 {}
func (NoopVisitor) VisitClockDomain(*EntityNode, *ConfigurationNode, *ClockDomainNode)                 {}
func (NoopVisitor) VisitLocale(*EntityNode, *ConfigurationNode, *LocaleNode)                           {}
func (NoopVisitor) VisitStrings(*EntityNode, *LocaleNode, *StringsNode)                                {}
func (NoopVisitor) VisitMemoryObject(*EntityNode, *ConfigurationNode, *MemoryObjectNode)               {}
func (NoopVisitor) VisitControl(*EntityNode, *ConfigurationNode, *ControlNode)                         {}
func (NoopVisitor) VisitTiming(*EntityNode, *ConfigurationNode, *TimingNode)                           {}
func (NoopVisitor) VisitPtpInstance(*EntityNode, *TimingNode, *PtpInstanceNode)                        {}
func (NoopVisitor) VisitPtpPort(*EntityNode, *PtpInstanceNode, *PtpPortNode)                           {}
func (NoopVisitor) VisitRedundantStreamGroup(*EntityNode, *ConfigurationNode, *RedundantStreamGroup)   {}
func (NoopVisitor) VisitPtpTimingView(*EntityNode, []*PtpInstanceNode)                                 {}

// RedundantStreamGroup is the virtual node spec §4.H calls out explicitly:
// Milan redundancy pairs two STREAM_INPUT (or two STREAM_OUTPUT)
// descriptors that share a redundancy group label, neither of which the
// AEM tree itself models as a group.
type RedundantStreamGroup struct {
	Label     string
	IsInput   bool
	Primary   *StreamNode
	Secondary *StreamNode
}

// Walk visits every real descriptor node under entity in a stable,
// top-down order, then synthesizes the virtual nodes (redundant stream
// groups per configuration, and one flattened PTP timing view for the
// whole entity) last.
func Walk(entity *EntityNode, v Visitor) {
	v.VisitEntity(entity)
	var allPtpInstances []*PtpInstanceNode

	for ci := range entity.Configurations {
		config := &entity.Configurations[ci]
		v.VisitConfiguration(entity, config)

		for ui := range config.AudioUnits {
			unit := &config.AudioUnits[ui]
			v.VisitAudioUnit(entity, config, unit)
			for pi := range unit.StreamPortInputs {
				port := &unit.StreamPortInputs[pi]
				v.VisitStreamPort(entity, config, unit, port, true)
				for ci2 := range port.Clusters {
					v.VisitAudioCluster(entity, port, &port.Clusters[ci2])
				}
			}
			for pi := range unit.StreamPortOutputs {
				port := &unit.StreamPortOutputs[pi]
				v.VisitStreamPort(entity, config, unit, port, false)
				for ci2 := range port.Clusters {
					v.VisitAudioCluster(entity, port, &port.Clusters[ci2])
				}
			}
		}

		for si := range config.StreamInputs {
			v.VisitStreamInput(entity, config, &config.StreamInputs[si])
		}
		for si := range config.StreamOutputs {
			v.VisitStreamOutput(entity, config, &config.StreamOutputs[si])
		}
		for ai := range config.AvbInterfaces {
			v.VisitAvbInterface(entity, config, &config.AvbInterfaces[ai])
		}
		for csi := range config.ClockSources {
			v.VisitClockSource(entity, config, &config.ClockSources[csi])
		}
		for cdi := range config.ClockDomains {
			v.VisitClockDomain(entity, config, &config.ClockDomains[cdi])
		}
		for li := range config.Locales {
			locale := &config.Locales[li]
			v.VisitLocale(entity, config, locale)
			for ssi := range locale.Strings {
				v.VisitStrings(entity, locale, &locale.Strings[ssi])
			}
		}
		for mi := range config.MemoryObjects {
			v.VisitMemoryObject(entity, config, &config.MemoryObjects[mi])
		}
		for coi := range config.Controls {
			v.VisitControl(entity, config, &config.Controls[coi])
		}
		for ti := range config.Timings {
			timing := &config.Timings[ti]
			v.VisitTiming(entity, config, timing)
			for pii := range timing.PtpInstances {
				instance := &timing.PtpInstances[pii]
				v.VisitPtpInstance(entity, timing, instance)
				allPtpInstances = append(allPtpInstances, instance)
				for ppi := range instance.PtpPorts {
					v.VisitPtpPort(entity, instance, &instance.PtpPorts[ppi])
				}
			}
		}

		for _, group := range redundantGroups(config.StreamInputs, true) {
			g := group
			v.VisitRedundantStreamGroup(entity, config, &g)
		}
		for _, group := range redundantGroups(config.StreamOutputs, false) {
			g := group
			v.VisitRedundantStreamGroup(entity, config, &g)
		}
	}

	if len(allPtpInstances) > 0 {
		v.VisitPtpTimingView(entity, allPtpInstances)
	}
}

// redundantGroups pairs streams whose names share a Milan-style
// "<label>_redundant_primary"/"<label>_redundant_secondary" convention into virtual
// RedundantStreamGroup nodes. Streams with no recognized pairing are
// simply omitted from the virtual view; they remain visitable as ordinary
// StreamNodes regardless.
func redundantGroups(streams []StreamNode, isInput bool) []RedundantStreamGroup {
	// member collects the two streams sharing a redundancy label; the name
	// suffix is only used to detect the pairing, not to assign the role.
	type member struct {
		first, second *StreamNode
	}
	byLabel := make(map[string]*member)
	var order []string
	for i := range streams {
		s := &streams[i]
		label, _, ok := parseRedundancyName(s.Name)
		if !ok {
			continue
		}
		m, exists := byLabel[label]
		if !exists {
			m = &member{}
			byLabel[label] = m
			order = append(order, label)
		}
		if m.first == nil {
			m.first = s
		} else {
			m.second = s
		}
	}

	groups := make([]RedundantStreamGroup, 0, len(order))
	for _, label := range order {
		m := byLabel[label]
		g := RedundantStreamGroup{Label: label, IsInput: isInput}
		// Primary is the one with the lower Index (spec §3.2), regardless
		// of which of the pair happens to carry the "_redundant_primary"
		// name suffix: naming and indexing are assigned independently.
		if m.second == nil || m.first.Index <= m.second.Index {
			g.Primary, g.Secondary = m.first, m.second
		} else {
			g.Primary, g.Secondary = m.second, m.first
		}
		groups = append(groups, g)
	}
	return groups
}

// parseRedundancyName recognizes "<label>_redundant_primary" and
// "<label>_redundant_secondary" suffixes. role 0 means primary, 1 means
// secondary.
func parseRedundancyName(name string) (label string, role int, ok bool) {
	const primarySuffix = "_redundant_primary"
	const secondarySuffix = "_redundant_secondary"
	if len(name) > len(primarySuffix) && name[len(name)-len(primarySuffix):] == primarySuffix {
		return name[:len(name)-len(primarySuffix)], 0, true
	}
	if len(name) > len(secondarySuffix) && name[len(name)-len(secondarySuffix):] == secondarySuffix {
		return name[:len(name)-len(secondarySuffix)], 1, true
	}
	return "", 0, false
}
