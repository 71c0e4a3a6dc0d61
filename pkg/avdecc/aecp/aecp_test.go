package aecp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
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

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// echoEntity answers every non-response AEM command it observes with a
// bare success response carrying the same sequence ID and command type.
func echoEntity(pi *protocolif.Interface) {
	pi.ObserveAEM(func(frame []byte) {
		cmd, err := protocol.ParseAEMPDU(frame)
		if err != nil || cmd.MessageType.IsResponse() {
			return
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
			CommandSpecificData: cmd.CommandSpecificData,
		}
		_ = pi.SendAECPMessage(resp.Serialize())
	})
}

func TestSendCommandResolvesAndRecordsResponseTime(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.aecp.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.aecp.entity", 0x02)
	defer stopEntity()
	echoEntity(entityPI)

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))
	target := protocol.EntityID(0xBEEF)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	var gotResp *protocol.AEMPDU
	require.NoError(t, client.SendCommand(target, protocol.MacAddress{0x02}, protocol.AemAcquireEntity, nil, protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			gotResp, gotErr = resp, err
			wg.Done()
		}))

	waitOrFail(t, &wg)
	require.NoError(t, gotErr)
	require.Equal(t, protocol.AemAcquireEntity, gotResp.CommandType)
	require.Greater(t, client.AverageResponseTime(target), time.Duration(0))
}

func TestSendCommandTimesOutWithNoResponder(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.aecp.timeout.controller", 0x01)
	defer stopController()

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))
	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	require.NoError(t, client.SendCommand(protocol.EntityID(0x1234), protocol.MacAddress{0x02}, protocol.AemAcquireEntity, nil, protocolif.TimeoutAEM,
		func(resp *protocol.AEMPDU, err error) {
			gotErr = err
			wg.Done()
		}))

	waitOrFail(t, &wg)
	require.True(t, avdeccerrors.IsTimeout(gotErr))
	require.Equal(t, time.Duration(0), client.AverageResponseTime(protocol.EntityID(0x1234)))
}

func TestAddAudioMappingsRejectsOversizedBatchLocally(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.aecp.mappings.controller", 0x01)
	defer stopController()

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))
	mappings := make([]protocol.AudioMapping, protocol.MaxAudioMappingsPerCommand+1)

	err := client.AddAudioMappings(protocol.EntityID(0x1), protocol.MacAddress{0x02}, 0, 0, mappings, func(*protocol.AEMPDU, error) {
		t.Fatal("callback must not run: command should never be transmitted")
	})
	require.Error(t, err)
	var bad *avdeccerrors.BadArgumentsError
	require.ErrorAs(t, err, &bad)
}

func TestAddAudioMappingsAtLimitSucceeds(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.aecp.mappings.ok.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.aecp.mappings.ok.entity", 0x02)
	defer stopEntity()
	echoEntity(entityPI)

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))
	mappings := make([]protocol.AudioMapping, protocol.MaxAudioMappingsPerCommand)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotErr error
	require.NoError(t, client.AddAudioMappings(protocol.EntityID(0x2), protocol.MacAddress{0x02}, 0, 0, mappings, func(resp *protocol.AEMPDU, err error) {
		gotErr = err
		wg.Done()
	}))
	waitOrFail(t, &wg)
	require.NoError(t, gotErr)
}

type unsolicitedRecorder struct {
	mu            sync.Mutex
	notifications int
	gaps          []uint32
	wg            *sync.WaitGroup
}

func (u *unsolicitedRecorder) OnUnsolicitedNotification(protocol.EntityID, *protocol.AEMPDU) {
	u.mu.Lock()
	u.notifications++
	wg := u.wg
	u.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}

func (u *unsolicitedRecorder) OnUnsolicitedGap(_ protocol.EntityID, lost uint32) {
	u.mu.Lock()
	u.gaps = append(u.gaps, lost)
	u.mu.Unlock()
}

func sendUnsolicited(t *testing.T, pi *protocolif.Interface, entity, controller protocol.EntityID, seq uint16) {
	t.Helper()
	pdu := &protocol.AEMPDU{
		AecpCommon: protocol.AecpCommon{
			Ethernet:           protocol.EthernetHeader{DstMAC: protocol.MacAddress{0x01}, SrcMAC: protocol.MacAddress{0x02}},
			MessageType:        protocol.AecpAemResponse,
			TargetEntityID:     entity,
			ControllerEntityID: controller,
			SequenceID:         seq,
		},
		Unsolicited: true,
		CommandType: protocol.AemGetStreamInfo,
	}
	require.NoError(t, pi.SendAECPMessage(pdu.Serialize()))
}

func TestObserveUnsolicitedDetectsGap(t *testing.T) {
	bus := transport.NewVirtualBus()
	controllerPI, stopController := newPairOnBus(t, bus, "test.aecp.unsol.controller", 0x01)
	defer stopController()
	entityPI, stopEntity := newPairOnBus(t, bus, "test.aecp.unsol.entity", 0x02)
	defer stopEntity()

	client := NewClient(controllerPI, protocol.EntityID(0xC0FFEE))

	var wg sync.WaitGroup
	wg.Add(2)
	rec := &unsolicitedRecorder{wg: &wg}
	unregister := client.ObserveUnsolicited(rec)
	defer unregister()

	entity := protocol.EntityID(0xD00D)
	sendUnsolicited(t, entityPI, entity, protocol.EntityID(0xC0FFEE), 0)
	sendUnsolicited(t, entityPI, entity, protocol.EntityID(0xC0FFEE), 3) // skipped 1,2

	waitOrFail(t, &wg)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Equal(t, 2, rec.notifications)
	require.Equal(t, []uint32{2}, rec.gaps)
	require.EqualValues(t, 2, client.LostCount(entity))
}
