package adp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

func newInterfaceOnBus(t *testing.T, bus *transport.VirtualBus, name string, mac byte) (*protocolif.Interface, func()) {
	t.Helper()
	exec := executor.New(name)
	tr := transport.NewVirtualTransport(bus, protocol.MacAddress{mac}, exec)
	pi := protocolif.New(name, tr, protocolif.DefaultTiming())
	return pi, func() {
		pi.Close()
		tr.Close()
		exec.Shutdown()
	}
}

type recordingObserver struct {
	mu        sync.Mutex
	online    []EntitySnapshot
	updates   []EntitySnapshot
	offline   []protocol.EntityID
	redOnline []EntitySnapshot
	redOff    []InterfaceKey
	wg        *sync.WaitGroup
}

func (r *recordingObserver) OnEntityOnline(snap EntitySnapshot) {
	r.mu.Lock()
	r.online = append(r.online, snap)
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}
func (r *recordingObserver) OnEntityUpdate(snap, _ EntitySnapshot) {
	r.mu.Lock()
	r.updates = append(r.updates, snap)
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}
func (r *recordingObserver) OnEntityOffline(id protocol.EntityID) {
	r.mu.Lock()
	r.offline = append(r.offline, id)
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}
func (r *recordingObserver) OnEntityRedundantInterfaceOnline(snap EntitySnapshot) {
	r.mu.Lock()
	r.redOnline = append(r.redOnline, snap)
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}
func (r *recordingObserver) OnEntityRedundantInterfaceOffline(key InterfaceKey) {
	r.mu.Lock()
	r.redOff = append(r.redOff, key)
	wg := r.wg
	r.mu.Unlock()
	if wg != nil {
		wg.Done()
	}
}

func waitFor(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ADP notification")
	}
}

func TestAdvertiserEmitsEntityAvailableOnStart(t *testing.T) {
	bus := transport.NewVirtualBus()
	talkerPI, stopTalker := newInterfaceOnBus(t, bus, "test.adp.talker", 0x01)
	defer stopTalker()
	listenerPI, stopListener := newInterfaceOnBus(t, bus, "test.adp.listener", 0x02)
	defer stopListener()

	var wg sync.WaitGroup
	wg.Add(1)
	obs := &recordingObserver{wg: &wg}
	disco := NewDiscoverer(listenerPI, obs)
	disco.Start()
	defer disco.Stop()

	adv := NewAdvertiser(talkerPI, AdvertiseConfig{
		EntityID:      protocol.EntityID(0xAAAA),
		EntityModelID: 0x1,
		ValidTime:     10 * time.Second,
	})
	adv.Start()
	defer adv.Stop()

	waitFor(t, &wg)
	require.Len(t, obs.online, 1)
	require.Equal(t, protocol.EntityID(0xAAAA), obs.online[0].Key.EntityID)
}

func TestAdvertiserAnswersDiscover(t *testing.T) {
	bus := transport.NewVirtualBus()
	talkerPI, stopTalker := newInterfaceOnBus(t, bus, "test.adp.discover.talker", 0x01)
	defer stopTalker()
	controllerPI, stopController := newInterfaceOnBus(t, bus, "test.adp.discover.controller", 0x02)
	defer stopController()

	var wg sync.WaitGroup
	wg.Add(2) // the initial unsolicited EntityAvailable, then the Discover reply
	var mu sync.Mutex
	var seen int
	controllerPI.ObserveADP(func(frame []byte) {
		pdu, err := protocol.ParseADPDU(frame)
		require.NoError(t, err)
		if pdu.MessageType == protocol.AdpEntityAvailable && pdu.EntityID == protocol.EntityID(0xBEEF) {
			mu.Lock()
			seen++
			mu.Unlock()
			wg.Done()
		}
	})

	adv := NewAdvertiser(talkerPI, AdvertiseConfig{EntityID: protocol.EntityID(0xBEEF), ValidTime: 10 * time.Second})
	adv.Start()
	defer adv.Stop()

	require.NoError(t, controllerPI.DiscoverRemoteEntities(protocol.NullEntityID))
	waitFor(t, &wg)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, seen)
}

func TestAdvertiserStopEmitsEntityDeparting(t *testing.T) {
	bus := transport.NewVirtualBus()
	talkerPI, stopTalker := newInterfaceOnBus(t, bus, "test.adp.departing.talker", 0x01)
	defer stopTalker()
	listenerPI, stopListener := newInterfaceOnBus(t, bus, "test.adp.departing.listener", 0x02)
	defer stopListener()

	var onlineWG sync.WaitGroup
	onlineWG.Add(1)
	obs := &recordingObserver{wg: &onlineWG}
	disco := NewDiscoverer(listenerPI, obs)
	disco.Start()
	defer disco.Stop()

	adv := NewAdvertiser(talkerPI, AdvertiseConfig{EntityID: protocol.EntityID(0xCAFE), ValidTime: 10 * time.Second})
	adv.Start()
	waitFor(t, &onlineWG)

	var offlineWG sync.WaitGroup
	offlineWG.Add(1)
	obs.mu.Lock()
	obs.wg = &offlineWG
	obs.mu.Unlock()

	adv.Stop()
	waitFor(t, &offlineWG)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Equal(t, []protocol.EntityID{protocol.EntityID(0xCAFE)}, obs.offline)
}

func TestDiscovererTracksRedundantInterfacesIndependently(t *testing.T) {
	bus := transport.NewVirtualBus()
	talkerPI, stopTalker := newInterfaceOnBus(t, bus, "test.adp.redundant.talker", 0x01)
	defer stopTalker()
	listenerPI, stopListener := newInterfaceOnBus(t, bus, "test.adp.redundant.listener", 0x02)
	defer stopListener()

	var wg sync.WaitGroup
	wg.Add(2) // primary online, then secondary interface redundant-online
	obs := &recordingObserver{wg: &wg}
	disco := NewDiscoverer(listenerPI, obs)
	disco.Start()
	defer disco.Stop()

	primary := NewAdvertiser(talkerPI, AdvertiseConfig{
		EntityID:           protocol.EntityID(0xD00D),
		EntityCapabilities: protocol.EntityCapAemInterfaceIndexValid,
		InterfaceIndex:     0,
		ValidTime:          10 * time.Second,
	})
	primary.Start()
	defer primary.Stop()

	secondary := NewAdvertiser(talkerPI, AdvertiseConfig{
		EntityID:           protocol.EntityID(0xD00D),
		EntityCapabilities: protocol.EntityCapAemInterfaceIndexValid,
		InterfaceIndex:     1,
		ValidTime:          10 * time.Second,
	})
	secondary.Start()
	defer secondary.Stop()

	waitFor(t, &wg)
	require.Len(t, obs.online, 1)
	require.Len(t, obs.redOnline, 1)
	require.Equal(t, uint16(1), obs.redOnline[0].Key.InterfaceIndex)
}
