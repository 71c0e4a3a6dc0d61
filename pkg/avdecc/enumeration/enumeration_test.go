package enumeration

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/entitymodel"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/localentity"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

func fastTiming() protocolif.Timing {
	return protocolif.Timing{
		AEMCommandTimeout:    30 * time.Millisecond,
		AddressAccessTimeout: 30 * time.Millisecond,
		VendorUniqueTimeout:  30 * time.Millisecond,
		AcmpCommandTimeout:   30 * time.Millisecond,
		Retries:              1,
	}
}

func newPairOnBus(t *testing.T, bus *transport.VirtualBus, name string, mac byte) (*protocolif.Interface, func()) {
	t.Helper()
	exec := executor.New(name)
	tr := transport.NewVirtualTransport(bus, protocol.MacAddress{mac}, exec)
	pi := protocolif.New(name, tr, fastTiming())
	return pi, func() {
		pi.Close()
		tr.Close()
		exec.Shutdown()
	}
}

func fixedName(s string) []byte {
	buf := make([]byte, 64)
	copy(buf, s)
	return buf
}

// fakeEntity answers ReadDescriptor/GetStreamInfo/RegisterUnsolicited
// with a small canned two-stream, one-clock-domain model, letting the
// scheduler be exercised end to end without a real device.
func fakeEntity(pi *protocolif.Interface, entityModelID uint64) {
	pi.ObserveAEM(func(frame []byte) {
		cmd, err := protocol.ParseAEMPDU(frame)
		if err != nil || cmd.MessageType.IsResponse() {
			return
		}
		var body []byte
		switch cmd.CommandType {
		case protocol.AemReadDescriptor:
			req := cmd.CommandSpecificData
			descType := protocol.DescriptorType(binary.BigEndian.Uint16(req[4:6]))
			descIndex := binary.BigEndian.Uint16(req[6:8])
			switch descType {
			case protocol.DescriptorEntity:
				payload := make([]byte, 20+64)
				binary.BigEndian.PutUint64(payload[0:8], uint64(cmd.TargetEntityID))
				binary.BigEndian.PutUint64(payload[8:16], entityModelID)
				binary.BigEndian.PutUint16(payload[16:18], 1) // configurationsCount
				binary.BigEndian.PutUint16(payload[18:20], 0) // currentConfiguration
				copy(payload[20:], fixedName("fake-entity"))
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorConfiguration:
				payload := append([]byte{}, fixedName("config-0")...)
				counts := make([]byte, 2+3*4)
				binary.BigEndian.PutUint16(counts[0:2], 3)
				binary.BigEndian.PutUint16(counts[2:4], uint16(protocol.DescriptorStreamInput))
				binary.BigEndian.PutUint16(counts[4:6], 1)
				binary.BigEndian.PutUint16(counts[6:8], uint16(protocol.DescriptorStreamOutput))
				binary.BigEndian.PutUint16(counts[8:10], 1)
				binary.BigEndian.PutUint16(counts[10:12], uint16(protocol.DescriptorClockDomain))
				binary.BigEndian.PutUint16(counts[12:14], 1)
				payload = append(payload, counts...)
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorStreamInput, protocol.DescriptorStreamOutput:
				payload := append([]byte{}, fixedName("stream-0")...)
				tail := make([]byte, 10)
				binary.BigEndian.PutUint64(tail[0:8], 0x00A0020140000800)
				binary.BigEndian.PutUint16(tail[8:10], 0)
				payload = append(payload, tail...)
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorClockDomain:
				payload := append([]byte{}, fixedName("domain-0")...)
				payload = append(payload, 0x00, 0x00, 0x00, 0x00)
				body = append(append([]byte(nil), req...), payload...)
			default:
				resp := &protocol.AEMPDU{
					AecpCommon: protocol.AecpCommon{
						Ethernet:           protocol.EthernetHeader{DstMAC: cmd.Ethernet.SrcMAC, SrcMAC: cmd.Ethernet.DstMAC},
						MessageType:        protocol.AecpAemResponse,
						Status:             uint8(1), // NotImplemented
						TargetEntityID:     cmd.TargetEntityID,
						ControllerEntityID: cmd.ControllerEntityID,
						SequenceID:         cmd.SequenceID,
					},
					CommandType:         cmd.CommandType,
					CommandSpecificData: req,
				}
				_ = pi.SendAECPMessage(resp.Serialize())
				return
			}
			_ = descIndex
		case protocol.AemGetStreamInfo:
			payload := make([]byte, 32)
			copy(payload[0:4], cmd.CommandSpecificData[0:4])
			binary.BigEndian.PutUint64(payload[8:16], 0x00A0020140000800)
			body = payload
		case protocol.AemGetAudioMap:
			req := cmd.CommandSpecificData
			mapIndex := binary.BigEndian.Uint16(req[4:6])
			if mapIndex > 0 {
				body = make([]byte, 8)
			} else {
				body = make([]byte, 16)
				binary.BigEndian.PutUint16(body[2:4], 1)   // mapping count
				binary.BigEndian.PutUint16(body[14:16], 1) // clusterChannel
			}
		case protocol.AemRegisterUnsolicitedNotifications:
			body = nil
		default:
			body = cmd.CommandSpecificData
		}
		resp := &protocol.AEMPDU{
			AecpCommon: protocol.AecpCommon{
				Ethernet:           protocol.EthernetHeader{DstMAC: cmd.Ethernet.SrcMAC, SrcMAC: cmd.Ethernet.DstMAC},
				MessageType:        protocol.AecpAemResponse,
				TargetEntityID:     cmd.TargetEntityID,
				ControllerEntityID: cmd.ControllerEntityID,
				SequenceID:         cmd.SequenceID,
			},
			CommandType:         cmd.CommandType,
			CommandSpecificData: body,
		}
		_ = pi.SendAECPMessage(resp.Serialize())
	})
}

type recordingObserver struct {
	mu         sync.Mutex
	enumerated []protocol.EntityID
	queryErrs  []error
}

func (r *recordingObserver) OnEntityEnumerated(entityID protocol.EntityID, _ *entitymodel.EntityNode, _ CompatibilityFlags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enumerated = append(r.enumerated, entityID)
}

func (r *recordingObserver) OnEntityQueryError(_ protocol.EntityID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryErrs = append(r.queryErrs, err)
}

func TestEnumerateBuildsStaticAndDynamicTree(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.enum.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.enum.entity", 0x02)
	defer stopEntity()
	fakeEntity(entityPI, 0xCAFE)

	le := localentity.New(controllerPI, protocol.EntityID(0xC0FFEE))
	sched := New(le, Config{})
	obs := &recordingObserver{}
	sched.Observe(obs)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tree, compat, err := sched.Enumerate(ctx, protocol.EntityID(0xBEEF), protocol.MacAddress{0x02})
	require.NoError(t, err)
	require.NotNil(t, tree)
	require.Equal(t, uint64(0xCAFE), tree.EntityModelID)
	require.Equal(t, "fake-entity", tree.EntityName)
	require.Len(t, tree.Configurations, 1)
	require.Len(t, tree.Configurations[0].StreamInputs, 1)
	require.Len(t, tree.Configurations[0].StreamOutputs, 1)
	require.Len(t, tree.Configurations[0].ClockDomains, 1)
	require.Equal(t, uint64(0x00A0020140000800), tree.Configurations[0].StreamInputs[0].CurrentFormat)
	require.NotZero(t, compat&CompatibilityIEEE17221)
	require.Zero(t, compat&CompatibilityMilan)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []protocol.EntityID{protocol.EntityID(0xBEEF)}, obs.enumerated)
	require.Empty(t, obs.queryErrs)
}

// fakeEntityWithAudioUnit answers ReadDescriptor for a configuration
// declaring a single AUDIO_UNIT with one STREAM_PORT_INPUT holding one
// AUDIO_CLUSTER, plus GetAudioMap for that port's currently configured
// mapping — exercising the AudioUnit->StreamPort->AudioCluster nesting and
// mapping page read that channelconnections.collectStreamPortMappings
// depends on.
func fakeEntityWithAudioUnit(pi *protocolif.Interface, entityModelID uint64) {
	pi.ObserveAEM(func(frame []byte) {
		cmd, err := protocol.ParseAEMPDU(frame)
		if err != nil || cmd.MessageType.IsResponse() {
			return
		}
		var body []byte
		switch cmd.CommandType {
		case protocol.AemReadDescriptor:
			req := cmd.CommandSpecificData
			descType := protocol.DescriptorType(binary.BigEndian.Uint16(req[4:6]))
			switch descType {
			case protocol.DescriptorEntity:
				payload := make([]byte, 20+64)
				binary.BigEndian.PutUint64(payload[0:8], uint64(cmd.TargetEntityID))
				binary.BigEndian.PutUint64(payload[8:16], entityModelID)
				binary.BigEndian.PutUint16(payload[16:18], 1)
				binary.BigEndian.PutUint16(payload[18:20], 0)
				copy(payload[20:], fixedName("fake-entity"))
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorConfiguration:
				payload := append([]byte{}, fixedName("config-0")...)
				counts := make([]byte, 2+4)
				binary.BigEndian.PutUint16(counts[0:2], 1)
				binary.BigEndian.PutUint16(counts[2:4], uint16(protocol.DescriptorAudioUnit))
				binary.BigEndian.PutUint16(counts[4:6], 1)
				payload = append(payload, counts...)
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorAudioUnit:
				payload := append([]byte{}, fixedName("unit-0")...)
				tail := make([]byte, 12)
				binary.BigEndian.PutUint32(tail[0:4], 48000)
				binary.BigEndian.PutUint16(tail[4:6], 0) // baseStreamPortInput
				binary.BigEndian.PutUint16(tail[6:8], 1) // numStreamPortInputs
				binary.BigEndian.PutUint16(tail[8:10], 0)
				binary.BigEndian.PutUint16(tail[10:12], 0)
				payload = append(payload, tail...)
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorStreamPortInput:
				payload := make([]byte, 4)
				binary.BigEndian.PutUint16(payload[0:2], 0) // baseCluster
				binary.BigEndian.PutUint16(payload[2:4], 1) // numberOfClusters
				body = append(append([]byte(nil), req...), payload...)
			case protocol.DescriptorAudioCluster:
				payload := append([]byte{}, fixedName("cluster-0")...)
				payload = append(payload, 0x00, 0x02) // channelCount
				body = append(append([]byte(nil), req...), payload...)
			default:
				resp := &protocol.AEMPDU{
					AecpCommon: protocol.AecpCommon{
						Ethernet:           protocol.EthernetHeader{DstMAC: cmd.Ethernet.SrcMAC, SrcMAC: cmd.Ethernet.DstMAC},
						MessageType:        protocol.AecpAemResponse,
						Status:             uint8(1),
						TargetEntityID:     cmd.TargetEntityID,
						ControllerEntityID: cmd.ControllerEntityID,
						SequenceID:         cmd.SequenceID,
					},
					CommandType:         cmd.CommandType,
					CommandSpecificData: req,
				}
				_ = pi.SendAECPMessage(resp.Serialize())
				return
			}
		case protocol.AemGetAudioMap:
			req := cmd.CommandSpecificData
			mapIndex := binary.BigEndian.Uint16(req[4:6])
			if mapIndex > 0 {
				body = make([]byte, 8)
			} else {
				body = make([]byte, 16)
				binary.BigEndian.PutUint16(body[2:4], 1)
				binary.BigEndian.PutUint16(body[14:16], 1) // clusterChannel
			}
		case protocol.AemRegisterUnsolicitedNotifications:
			body = nil
		default:
			body = cmd.CommandSpecificData
		}
		resp := &protocol.AEMPDU{
			AecpCommon: protocol.AecpCommon{
				Ethernet:           protocol.EthernetHeader{DstMAC: cmd.Ethernet.SrcMAC, SrcMAC: cmd.Ethernet.DstMAC},
				MessageType:        protocol.AecpAemResponse,
				TargetEntityID:     cmd.TargetEntityID,
				ControllerEntityID: cmd.ControllerEntityID,
				SequenceID:         cmd.SequenceID,
			},
			CommandType:         cmd.CommandType,
			CommandSpecificData: body,
		}
		_ = pi.SendAECPMessage(resp.Serialize())
	})
}

// TestEnumerateWalksAudioUnitStreamPortClusterAndMappings confirms the
// scheduler fans out into AudioUnit->StreamPort->AudioCluster and reads
// back the port's configured audio mapping, not just the three original
// top-level descriptor kinds.
func TestEnumerateWalksAudioUnitStreamPortClusterAndMappings(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.enum.audiounit.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.enum.audiounit.entity", 0x02)
	defer stopEntity()
	fakeEntityWithAudioUnit(entityPI, 0xBEEF0000)

	le := localentity.New(controllerPI, protocol.EntityID(0xC0FFEE))
	sched := New(le, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tree, _, err := sched.Enumerate(ctx, protocol.EntityID(0xBEEF), protocol.MacAddress{0x02})
	require.NoError(t, err)
	require.Len(t, tree.Configurations[0].AudioUnits, 1)

	unit := tree.Configurations[0].AudioUnits[0]
	require.Equal(t, "unit-0", unit.Name)
	require.Len(t, unit.StreamPortInputs, 1)

	port := unit.StreamPortInputs[0]
	require.Len(t, port.Clusters, 1)
	require.Equal(t, "cluster-0", port.Clusters[0].Name)
	require.Len(t, port.Mappings, 1)
	require.Equal(t, uint16(1), port.Mappings[0].ClusterChannel)
}

func TestEnumerateUsesCacheOnSecondCall(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.enum.cache.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.enum.cache.entity", 0x02)
	defer stopEntity()
	fakeEntity(entityPI, 0xCAFE)

	le := localentity.New(controllerPI, protocol.EntityID(0xC0FFEE))
	cache := NewMemoryCache()
	sched := New(le, Config{Cache: cache})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _, err := sched.Enumerate(ctx, protocol.EntityID(0xBEEF), protocol.MacAddress{0x02})
	require.NoError(t, err)

	_, ok := cache.Lookup(0xCAFE)
	require.True(t, ok)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	tree2, _, err := sched.Enumerate(ctx2, protocol.EntityID(0xBEEF), protocol.MacAddress{0x02})
	require.NoError(t, err)
	require.Len(t, tree2.Configurations[0].StreamInputs, 1)
}

func TestChecksumStableAcrossEqualTrees(t *testing.T) {
	tree := &entitymodel.EntityNode{
		Configurations: []entitymodel.ConfigurationNode{
			{Name: "config-0", StreamInputs: []entitymodel.StreamNode{{Name: "s0"}}},
		},
	}
	sum1, err := Checksum(tree, ChecksumV1)
	require.NoError(t, err)
	sum2, err := Checksum(tree, ChecksumV1)
	require.NoError(t, err)
	require.Equal(t, sum1, sum2)

	tree.Configurations[0].StreamInputs[0].Name = "s1"
	sum3, err := Checksum(tree, ChecksumV1)
	require.NoError(t, err)
	require.NotEqual(t, sum1, sum3)
}
