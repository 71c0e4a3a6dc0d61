// Package enumeration implements the scheduler that walks a newly
// discovered entity's descriptor tree and dynamic state into an
// entitymodel.EntityNode (spec §4.I).
package enumeration

import (
	"context"
	"sync"

	"github.com/imdario/mergo"
	"golang.org/x/sync/errgroup"

	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/localentity"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// CompatibilityFlags mirrors the controller's compatibility bitset (spec
// §4.J) to the extent the scheduler itself can determine it: whether the
// full static walk completed cleanly (IEEE17221) and whether the entity
// answered GetMilanInfo (Milan). The controller layer may add or remove
// bits later (Identify-control rule downgrades, etc).
type CompatibilityFlags uint8

const (
	CompatibilityIEEE17221 CompatibilityFlags = 1 << iota
	CompatibilityMilan
	CompatibilityMisbehaving
)

// Observer receives scheduler lifecycle notifications (spec §4.I step 5,
// and the "catastrophic failure" case).
type Observer interface {
	OnEntityEnumerated(entityID protocol.EntityID, tree *entitymodel.EntityNode, compat CompatibilityFlags)
	OnEntityQueryError(entityID protocol.EntityID, err error)
}

// Scheduler drives the enumeration flow for one local entity's view of the
// bus.
type Scheduler struct {
	le            *localentity.LocalEntity
	cache         Cache
	fastEnumeration bool

	obsMu     sync.Mutex
	observers []Observer
}

// Config controls optional scheduler behavior.
type Config struct {
	// Cache is consulted before any full descriptor walk and updated after
	// one completes. A nil Cache disables caching (every entity is walked
	// fresh every time).
	Cache Cache
	// FastEnumeration enables the Milan GET_DYNAMIC_INFO batched path for
	// entities that answer GetMilanInfo successfully.
	FastEnumeration bool
}

// New creates a Scheduler that issues commands through le.
func New(le *localentity.LocalEntity, cfg Config) *Scheduler {
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Scheduler{le: le, cache: cache, fastEnumeration: cfg.FastEnumeration}
}

// Observe registers obs for future enumeration notifications.
func (s *Scheduler) Observe(obs Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, obs)
}

func (s *Scheduler) notifyEnumerated(entityID protocol.EntityID, tree *entitymodel.EntityNode, compat CompatibilityFlags) {
	s.obsMu.Lock()
	obs := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range obs {
		o.OnEntityEnumerated(entityID, tree, compat)
	}
}

func (s *Scheduler) notifyQueryError(entityID protocol.EntityID, err error) {
	s.obsMu.Lock()
	obs := append([]Observer(nil), s.observers...)
	s.obsMu.Unlock()
	for _, o := range obs {
		o.OnEntityQueryError(entityID, err)
	}
}

// maxBatchSize bounds one GetDynamicInfo batch so its request payload
// stays under the default AECP frame size (spec §4.I "splits requested
// parameters into batches ≤ max payload").
const maxBatchSize = 16

// Enumerate runs the full spec §4.I flow for target and returns the
// resulting tree. It also fires the registered Observers exactly as
// production callers would rely on; tests that only need the return
// value may ignore that and just inspect the result.
func (s *Scheduler) Enumerate(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (*entitymodel.EntityNode, CompatibilityFlags, error) {
	summary, err := s.readEntitySummary(ctx, target, dstMAC)
	if err != nil {
		s.notifyQueryError(target, err)
		return nil, 0, err
	}

	compat := CompatibilityIEEE17221
	var tree *entitymodel.EntityNode

	if cached, ok := s.cache.Lookup(summary.EntityModelID); ok {
		tree = cloneTree(cached.Tree)
	} else {
		built, misbehaved, buildErr := s.walkStaticTree(ctx, target, dstMAC, summary)
		if buildErr != nil {
			s.notifyQueryError(target, buildErr)
			return nil, 0, buildErr
		}
		if misbehaved {
			compat |= CompatibilityMisbehaving
		}
		tree = built
		if sum, cerr := Checksum(tree, ChecksumV1); cerr == nil {
			s.cache.Store(summary.EntityModelID, CacheEntry{Tree: cloneTree(tree), Checksum: sum})
		}
	}
	tree.EntityID = summary.EntityID
	tree.EntityModelID = summary.EntityModelID
	tree.EntityName = summary.EntityName
	tree.CurrentConfiguration = summary.CurrentConfiguration

	_, milanErr := s.tryGetMilanInfo(ctx, target, dstMAC)
	if milanErr == nil {
		compat |= CompatibilityMilan
	}

	if misbehaved, dynErr := s.readDynamicState(ctx, target, dstMAC, tree, milanErr == nil && s.fastEnumeration); dynErr != nil {
		s.notifyQueryError(target, dynErr)
		return nil, 0, dynErr
	} else if misbehaved {
		compat |= CompatibilityMisbehaving
	}

	if err := s.subscribeUnsolicited(target, dstMAC); err != nil {
		compat |= CompatibilityMisbehaving
	}

	s.notifyEnumerated(target, tree, compat)
	return tree, compat, nil
}

func (s *Scheduler) readEntitySummary(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (entitymodel.EntitySummary, error) {
	resp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
		return s.le.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, readDescriptorRequest(0, protocol.DescriptorEntity, 0), protocolif.TimeoutAEM, cb)
	})
	if err != nil {
		return entitymodel.EntitySummary{}, err
	}
	if !avdeccerrors.AemStatus(resp.Status).IsSuccess() {
		return entitymodel.EntitySummary{}, avdeccerrors.NewAemStatusError("enumeration.readEntityDescriptor", avdeccerrors.AemStatus(resp.Status))
	}
	if len(resp.CommandSpecificData) < 8 {
		return entitymodel.EntitySummary{}, avdeccerrors.NewCodecError("enumeration.readEntityDescriptor", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	return entitymodel.DecodeEntitySummary(resp.CommandSpecificData[8:])
}

// walkStaticTree performs the full recursive descriptor read (spec §4.I
// step 2) using an errgroup to fan out the independent top-level
// descriptor categories concurrently. It returns whether any per-
// descriptor command was Misbehaving (timed out) along the way.
func (s *Scheduler) walkStaticTree(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, summary entitymodel.EntitySummary) (*entitymodel.EntityNode, bool, error) {
	configResp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
		return s.le.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, readDescriptorRequest(summary.CurrentConfiguration, protocol.DescriptorConfiguration, 0), protocolif.TimeoutAEM, cb)
	})
	if err != nil {
		return nil, false, err
	}
	if !avdeccerrors.AemStatus(configResp.Status).IsSuccess() {
		return nil, false, avdeccerrors.NewAemStatusError("enumeration.readConfigurationDescriptor", avdeccerrors.AemStatus(configResp.Status))
	}
	if len(configResp.CommandSpecificData) < 8 {
		return nil, false, avdeccerrors.NewCodecError("enumeration.readConfigurationDescriptor", avdeccerrors.DeserializationPayloadTooShort, nil)
	}
	configSummary, err := entitymodel.DecodeConfigurationSummary(configResp.CommandSpecificData[8:])
	if err != nil {
		return nil, false, err
	}

	config := entitymodel.ConfigurationNode{Index: summary.CurrentConfiguration, Name: configSummary.Name}
	var misbehaved bool
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		streams, m, err := s.readStreams(gctx, target, dstMAC, protocol.DescriptorStreamInput, configSummary.CountOf(protocol.DescriptorStreamInput))
		mu.Lock()
		config.StreamInputs, misbehaved = streams, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		streams, m, err := s.readStreams(gctx, target, dstMAC, protocol.DescriptorStreamOutput, configSummary.CountOf(protocol.DescriptorStreamOutput))
		mu.Lock()
		config.StreamOutputs, misbehaved = streams, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		domains, m, err := s.readClockDomains(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorClockDomain))
		mu.Lock()
		config.ClockDomains, misbehaved = domains, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		units, m, err := s.readAudioUnits(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorAudioUnit))
		mu.Lock()
		config.AudioUnits, misbehaved = units, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		ifaces, m, err := s.readAvbInterfaces(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorAvbInterface))
		mu.Lock()
		config.AvbInterfaces, misbehaved = ifaces, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		sources, m, err := s.readClockSources(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorClockSource))
		mu.Lock()
		config.ClockSources, misbehaved = sources, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		locales, m, err := s.readLocales(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorLocale))
		mu.Lock()
		config.Locales, misbehaved = locales, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		objs, m, err := s.readMemoryObjects(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorMemoryObject))
		mu.Lock()
		config.MemoryObjects, misbehaved = objs, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		controls, m, err := s.readControls(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorControl))
		mu.Lock()
		config.Controls, misbehaved = controls, misbehaved || m
		mu.Unlock()
		return err
	})
	g.Go(func() error {
		timings, m, err := s.readTimings(gctx, target, dstMAC, configSummary.CountOf(protocol.DescriptorTiming))
		mu.Lock()
		config.Timings, misbehaved = timings, misbehaved || m
		mu.Unlock()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	tree := &entitymodel.EntityNode{Configurations: []entitymodel.ConfigurationNode{config}}
	return tree, misbehaved, nil
}

func (s *Scheduler) readStreams(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, descType protocol.DescriptorType, count uint16) ([]entitymodel.StreamNode, bool, error) {
	var streams []entitymodel.StreamNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		resp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
			return s.le.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, readDescriptorRequest(0, descType, idx), protocolif.TimeoutAEM, cb)
		})
		if err != nil {
			action := classify(0, err, false)
			if action == FailureFatal {
				return nil, misbehaved, err
			}
			if action == FailureMisbehaving {
				misbehaved = true
			}
			continue
		}
		status := avdeccerrors.AemStatus(resp.Status)
		if !status.IsSuccess() {
			action := classify(status, nil, false)
			if action == FailureMisbehaving {
				misbehaved = true
			}
			continue
		}
		if len(resp.CommandSpecificData) < 8 {
			continue
		}
		node, derr := entitymodel.DecodeStreamInput(idx, resp.CommandSpecificData[8:])
		if derr != nil {
			continue
		}
		streams = append(streams, node)
	}
	return streams, misbehaved, nil
}

func (s *Scheduler) readClockDomains(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.ClockDomainNode, bool, error) {
	var domains []entitymodel.ClockDomainNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		resp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
			return s.le.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, readDescriptorRequest(0, protocol.DescriptorClockDomain, idx), protocolif.TimeoutAEM, cb)
		})
		if err != nil {
			if classify(0, err, false) == FailureMisbehaving {
				misbehaved = true
			}
			continue
		}
		status := avdeccerrors.AemStatus(resp.Status)
		if !status.IsSuccess() {
			continue
		}
		if len(resp.CommandSpecificData) < 8 {
			continue
		}
		node, derr := entitymodel.DecodeClockDomain(idx, resp.CommandSpecificData[8:])
		if derr != nil {
			continue
		}
		domains = append(domains, node)
	}
	return domains, misbehaved, nil
}

// readDescriptorBody issues one ReadDescriptor command and, on success,
// returns its payload with the common 8-byte request-echo header already
// stripped. ok is false for a fatal transport error, a non-success status,
// or a too-short response the caller should not attempt to decode;
// misbehaved mirrors the classify() verdict for the Misbehaving case so
// every per-kind reader can fold it the same way readStreams does.
func (s *Scheduler) readDescriptorBody(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, descType protocol.DescriptorType, idx protocol.DescriptorIndex) (body []byte, misbehaved bool, ok bool) {
	resp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
		return s.le.AECP.SendCommand(target, dstMAC, protocol.AemReadDescriptor, readDescriptorRequest(0, descType, idx), protocolif.TimeoutAEM, cb)
	})
	if err != nil {
		return nil, classify(0, err, false) == FailureMisbehaving, false
	}
	status := avdeccerrors.AemStatus(resp.Status)
	if !status.IsSuccess() {
		return nil, classify(status, nil, false) == FailureMisbehaving, false
	}
	if len(resp.CommandSpecificData) < 8 {
		return nil, false, false
	}
	return resp.CommandSpecificData[8:], false, true
}

func (s *Scheduler) readAvbInterfaces(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.AvbInterfaceNode, bool, error) {
	var ifaces []entitymodel.AvbInterfaceNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorAvbInterface, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		node, err := entitymodel.DecodeAvbInterface(idx, body)
		if err != nil {
			continue
		}
		ifaces = append(ifaces, node)
	}
	return ifaces, misbehaved, nil
}

func (s *Scheduler) readClockSources(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.ClockSourceNode, bool, error) {
	var sources []entitymodel.ClockSourceNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorClockSource, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		node, err := entitymodel.DecodeClockSource(idx, body)
		if err != nil {
			continue
		}
		sources = append(sources, node)
	}
	return sources, misbehaved, nil
}

func (s *Scheduler) readMemoryObjects(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.MemoryObjectNode, bool, error) {
	var objs []entitymodel.MemoryObjectNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorMemoryObject, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		node, err := entitymodel.DecodeMemoryObject(idx, body)
		if err != nil {
			continue
		}
		objs = append(objs, node)
	}
	return objs, misbehaved, nil
}

func (s *Scheduler) readControls(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.ControlNode, bool, error) {
	var controls []entitymodel.ControlNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorControl, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		node, err := entitymodel.DecodeControl(idx, body)
		if err != nil {
			continue
		}
		controls = append(controls, node)
	}
	return controls, misbehaved, nil
}

// readLocales reads every LOCALE descriptor and, for each, the STRINGS
// descriptors in the range it declares (spec §4.H "Locale→Strings"
// nesting).
func (s *Scheduler) readLocales(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.LocaleNode, bool, error) {
	var locales []entitymodel.LocaleNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorLocale, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		summary, err := entitymodel.DecodeLocale(idx, body)
		if err != nil {
			continue
		}
		locale := entitymodel.LocaleNode{Index: idx, Locale: summary.Locale}
		for si := uint16(0); si < summary.NumStrings; si++ {
			sidx := protocol.DescriptorIndex(uint16(summary.BaseStrings) + si)
			sbody, sm, sok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorStrings, sidx)
			misbehaved = misbehaved || sm
			if !sok {
				continue
			}
			strs, serr := entitymodel.DecodeStrings(sidx, sbody)
			if serr != nil {
				continue
			}
			locale.Strings = append(locale.Strings, strs)
		}
		locales = append(locales, locale)
	}
	return locales, misbehaved, nil
}

// readTimings reads every TIMING descriptor and, for each, its PTP_INSTANCE
// children and their PTP_PORT grandchildren (spec §4.H
// "Timing→PtpInstance→PtpPort" nesting).
func (s *Scheduler) readTimings(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.TimingNode, bool, error) {
	var timings []entitymodel.TimingNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorTiming, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		summary, err := entitymodel.DecodeTiming(idx, body)
		if err != nil {
			continue
		}
		timing := entitymodel.TimingNode{Index: idx, Name: summary.Name}
		for pi := uint16(0); pi < summary.NumPtpInstances; pi++ {
			pidx := protocol.DescriptorIndex(uint16(summary.BasePtpInstance) + pi)
			pbody, pm, pok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorPtpInstance, pidx)
			misbehaved = misbehaved || pm
			if !pok {
				continue
			}
			pSummary, perr := entitymodel.DecodePtpInstance(pidx, pbody)
			if perr != nil {
				continue
			}
			instance := entitymodel.PtpInstanceNode{Index: pidx, GrandmasterID: pSummary.GrandmasterID}
			for ppi := uint16(0); ppi < pSummary.NumPtpPorts; ppi++ {
				ppidx := protocol.DescriptorIndex(uint16(pSummary.BasePtpPort) + ppi)
				ppbody, ppm, ppok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorPtpPort, ppidx)
				misbehaved = misbehaved || ppm
				if !ppok {
					continue
				}
				port, pperr := entitymodel.DecodePtpPort(ppidx, ppbody)
				if pperr != nil {
					continue
				}
				instance.PtpPorts = append(instance.PtpPorts, port)
			}
			timing.PtpInstances = append(timing.PtpInstances, instance)
		}
		timings = append(timings, timing)
	}
	return timings, misbehaved, nil
}

// readAudioUnits reads every AUDIO_UNIT descriptor and, for each, the
// STREAM_PORT_INPUT/OUTPUT descriptors in the ranges it declares, each
// port's AUDIO_CLUSTER children, and each port's currently configured
// audio mappings (spec §4.H "AudioUnit→StreamPort" nesting;
// channelconnections.collectStreamPortMappings depends on Mappings being
// populated here).
func (s *Scheduler) readAudioUnits(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, count uint16) ([]entitymodel.AudioUnitNode, bool, error) {
	var units []entitymodel.AudioUnitNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorAudioUnit, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		summary, err := entitymodel.DecodeAudioUnit(idx, body)
		if err != nil {
			continue
		}
		unit := entitymodel.AudioUnitNode{Index: idx, Name: summary.Name, SamplingRate: summary.SamplingRate}

		ins, m1 := s.readStreamPorts(ctx, target, dstMAC, protocol.DescriptorStreamPortInput, true, summary.BaseStreamPortInput, summary.NumStreamPortInputs)
		misbehaved = misbehaved || m1
		unit.StreamPortInputs = ins

		outs, m2 := s.readStreamPorts(ctx, target, dstMAC, protocol.DescriptorStreamPortOutput, false, summary.BaseStreamPortOutput, summary.NumStreamPortOutputs)
		misbehaved = misbehaved || m2
		unit.StreamPortOutputs = outs

		units = append(units, unit)
	}
	return units, misbehaved, nil
}

func (s *Scheduler) readStreamPorts(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, descType protocol.DescriptorType, isInput bool, base protocol.DescriptorIndex, count uint16) ([]entitymodel.StreamPortNode, bool) {
	var ports []entitymodel.StreamPortNode
	var misbehaved bool
	for i := uint16(0); i < count; i++ {
		idx := protocol.DescriptorIndex(uint16(base) + i)
		body, m, ok := s.readDescriptorBody(ctx, target, dstMAC, descType, idx)
		misbehaved = misbehaved || m
		if !ok {
			continue
		}
		port, err := entitymodel.DecodeStreamPort(idx, body)
		if err != nil {
			continue
		}
		for ci := uint16(0); ci < port.NumberOfClusters; ci++ {
			cidx := protocol.DescriptorIndex(uint16(port.BaseCluster) + ci)
			cbody, cm, cok := s.readDescriptorBody(ctx, target, dstMAC, protocol.DescriptorAudioCluster, cidx)
			misbehaved = misbehaved || cm
			if !cok {
				continue
			}
			cluster, cerr := entitymodel.DecodeAudioCluster(cidx, cbody)
			if cerr != nil {
				continue
			}
			port.Clusters = append(port.Clusters, cluster)
		}
		mappings, mm := s.readStreamPortMappings(ctx, target, dstMAC, isInput, idx)
		misbehaved = misbehaved || mm
		port.Mappings = mappings
		ports = append(ports, port)
	}
	return ports, misbehaved
}

// readStreamPortMappings pages through GetAudioMap (spec §4.E) until a
// short page, or the first page being empty, signals there are no more
// entries.
func (s *Scheduler) readStreamPortMappings(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, isInput bool, portIndex protocol.DescriptorIndex) ([]protocol.AudioMapping, bool) {
	var mappings []protocol.AudioMapping
	var misbehaved bool
	for mapIndex := uint16(0); ; {
		resp, err := await(ctx, func(cb func(*protocol.AEMPDU, error)) error {
			if isInput {
				return s.le.GetStreamPortInputAudioMap(target, dstMAC, portIndex, mapIndex, cb)
			}
			return s.le.GetStreamPortOutputAudioMap(target, dstMAC, portIndex, mapIndex, cb)
		})
		if err != nil {
			if classify(0, err, false) == FailureMisbehaving {
				misbehaved = true
			}
			return mappings, misbehaved
		}
		status := avdeccerrors.AemStatus(resp.Status)
		if !status.IsSuccess() || len(resp.CommandSpecificData) < 8 {
			return mappings, misbehaved
		}
		page, derr := entitymodel.DecodeAudioMappings(resp.CommandSpecificData)
		if derr != nil {
			return mappings, misbehaved
		}
		mappings = append(mappings, page...)
		if len(page) < protocol.MaxAudioMappingsPerCommand {
			return mappings, misbehaved
		}
		mapIndex += uint16(len(page))
	}
}

func (s *Scheduler) tryGetMilanInfo(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress) (protocol.MilanInfo, error) {
	return await(ctx, func(cb func(protocol.MilanInfo, error)) error {
		return s.le.GetMilanInfo(target, dstMAC, cb)
	})
}

// readDynamicState reads dynamic stream info for every enumerated stream
// (spec §4.I step 3), using the Milan batched path when useFast is set and
// falling back to one GetStreamInfo per stream otherwise.
func (s *Scheduler) readDynamicState(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, tree *entitymodel.EntityNode, useFast bool) (bool, error) {
	var misbehaved bool
	for ci := range tree.Configurations {
		config := &tree.Configurations[ci]
		if useFast {
			if err := s.readDynamicInfoBatched(ctx, target, dstMAC, config); err != nil {
				misbehaved = true
			}
			continue
		}
		for si := range config.StreamInputs {
			if err := s.readOneStreamInfo(ctx, target, dstMAC, protocol.DescriptorStreamInput, &config.StreamInputs[si]); err != nil {
				misbehaved = true
			}
		}
		for si := range config.StreamOutputs {
			if err := s.readOneStreamInfo(ctx, target, dstMAC, protocol.DescriptorStreamOutput, &config.StreamOutputs[si]); err != nil {
				misbehaved = true
			}
		}
	}
	return misbehaved, nil
}

// readOneStreamInfo refreshes stream's dynamic fields from a GetStreamInfo
// round trip. mergo.Merge folds only the non-zero fields of the freshly
// read overlay onto the statically-read (possibly cache-loaded)
// StreamNode, so the dynamic read never clobbers fields it didn't touch
// (Name, Formats) even though both sides are the same struct type.
func (s *Scheduler) readOneStreamInfo(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, descType protocol.DescriptorType, stream *entitymodel.StreamNode) error {
	info, err := await(ctx, func(cb func(localentity.StreamInfo, error)) error {
		return s.le.GetStreamInfo(target, dstMAC, descType, stream.Index, cb)
	})
	if err != nil {
		return err
	}
	overlay := entitymodel.StreamNode{CurrentFormat: info.StreamFormat}
	return mergo.Merge(stream, overlay, mergo.WithOverride)
}

func (s *Scheduler) readDynamicInfoBatched(ctx context.Context, target protocol.EntityID, dstMAC protocol.MacAddress, config *entitymodel.ConfigurationNode) error {
	indexes := make([]protocol.DescriptorIndex, 0, len(config.StreamInputs))
	for i := range config.StreamInputs {
		indexes = append(indexes, config.StreamInputs[i].Index)
	}
	for start := 0; start < len(indexes); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(indexes) {
			end = len(indexes)
		}
		if _, err := await(ctx, func(cb func([]localentity.DynamicInfo, error)) error {
			return s.le.GetDynamicInfo(target, dstMAC, indexes[start:end], cb)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) subscribeUnsolicited(target protocol.EntityID, dstMAC protocol.MacAddress) error {
	return s.le.AECP.RegisterUnsolicitedNotifications(target, dstMAC, func(*protocol.AEMPDU, error) {})
}

func readDescriptorRequest(configurationIndex uint16, descriptorType protocol.DescriptorType, descriptorIndex protocol.DescriptorIndex) []byte {
	req := make([]byte, 8)
	req[0] = byte(configurationIndex >> 8)
	req[1] = byte(configurationIndex)
	req[4] = byte(descriptorType >> 8)
	req[5] = byte(descriptorType)
	req[6] = byte(descriptorIndex >> 8)
	req[7] = byte(descriptorIndex)
	return req
}

func cloneTree(tree *entitymodel.EntityNode) *entitymodel.EntityNode {
	clone := *tree
	clone.Configurations = append([]entitymodel.ConfigurationNode(nil), tree.Configurations...)
	return &clone
}
