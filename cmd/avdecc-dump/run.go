package main

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avdecc-go/avdecc/internal/config"
	avdeccerrors "github.com/avdecc-go/avdecc/internal/errors"
	"github.com/avdecc-go/avdecc/internal/logger"
	"github.com/avdecc-go/avdecc/pkg/avdecc/acmp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/adp"
	"github.com/avdecc-go/avdecc/pkg/avdecc/controller"
	"github.com/avdecc-go/avdecc/pkg/avdecc/enumeration"
	"github.com/avdecc-go/avdecc/pkg/avdecc/executor"
	"github.com/avdecc-go/avdecc/pkg/avdecc/hooks"
	"github.com/avdecc-go/avdecc/pkg/avdecc/localentity"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

// deriveControllerEntityID builds an EUI-64-style EntityID from a MAC
// address (OUI : FF : FE : NIC), the conventional construction for a
// locally-run controller that has no persisted entity ID of its own.
func deriveControllerEntityID(mac protocol.MacAddress) protocol.EntityID {
	return protocol.EntityID(
		uint64(mac[0])<<56 | uint64(mac[1])<<48 | uint64(mac[2])<<40 |
			0xFF<<32 | 0xFE<<24 |
			uint64(mac[3])<<16 | uint64(mac[4])<<8 | uint64(mac[5]),
	)
}

func openTransport(cfg config.Config) (*transport.RealTransport, protocol.MacAddress, error) {
	mac, err := transport.InterfaceMacAddress(cfg.Interface)
	if err != nil {
		return nil, protocol.MacAddress{}, err
	}
	backend, err := transport.OpenLive(cfg.Interface)
	if err != nil {
		return nil, protocol.MacAddress{}, err
	}
	execName := cfg.ExecutorName
	if execName == "" {
		execName = "avdecc.controller"
	}
	exec := executor.GetOrCreate(execName + "." + cfg.Interface)
	tr := transport.NewRealTransport(backend, mac, exec)
	return tr, mac, nil
}

// discoveryCollector is a minimal adp.Observer that just accumulates
// snapshots, the grounding for the "discover" command's lighter-weight
// path (the original's discovery.cpp listed entities without also
// driving a full enumeration scheduler, unlike entityDumper.cpp).
type discoveryCollector struct {
	mu    sync.Mutex
	byKey map[adp.InterfaceKey]adp.EntitySnapshot
}

func newDiscoveryCollector() *discoveryCollector {
	return &discoveryCollector{byKey: make(map[adp.InterfaceKey]adp.EntitySnapshot)}
}

func (d *discoveryCollector) OnEntityOnline(snap adp.EntitySnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKey[snap.Key] = snap
}
func (d *discoveryCollector) OnEntityUpdate(snap adp.EntitySnapshot, _ adp.EntitySnapshot) {
	d.OnEntityOnline(snap)
}
func (d *discoveryCollector) OnEntityOffline(entityID protocol.EntityID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.byKey {
		if k.EntityID == entityID {
			delete(d.byKey, k)
		}
	}
}
func (d *discoveryCollector) OnEntityRedundantInterfaceOnline(snap adp.EntitySnapshot) {
	d.OnEntityOnline(snap)
}
func (d *discoveryCollector) OnEntityRedundantInterfaceOffline(key adp.InterfaceKey) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byKey, key)
}

func (d *discoveryCollector) snapshot() []adp.EntitySnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]adp.EntitySnapshot, 0, len(d.byKey))
	for _, snap := range d.byKey {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.EntityID < out[j].Key.EntityID })
	return out
}

func runDiscover(cfg config.Config, timeout time.Duration) ([]adp.EntitySnapshot, error) {
	tr, _, err := openTransport(cfg)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	pi := protocolif.New("avdecc-dump-discover", tr, cfg.Timing())
	collector := newDiscoveryCollector()
	disc := adp.NewDiscoverer(pi, collector)
	disc.Start()
	defer disc.Stop()

	time.Sleep(timeout)
	return collector.snapshot(), nil
}

// runDump discovers the bus for timeout, enumerates target once it
// appears (or immediately if already known), and returns its
// ControlledEntity. If timeout passes before enumeration completes, the
// entity is returned without a tree; a target never seen is an error.
func runDump(cfg config.Config, target protocol.EntityID, timeout time.Duration) (*controller.ControlledEntity, error) {
	tr, mac, err := openTransport(cfg)
	if err != nil {
		return nil, err
	}
	defer tr.Close()

	pi := protocolif.New("avdecc-dump-dump", tr, cfg.Timing())
	controllerEntityID := deriveControllerEntityID(mac)

	le := localentity.New(pi, controllerEntityID)
	sched := enumeration.New(le, enumeration.Config{
		FastEnumeration: cfg.FastEnumeration,
		Cache:           enumeration.NewFileCache(cfg.EntityModelCacheDir),
	})
	acmpCli := acmp.NewClient(pi, controllerEntityID)

	ctrl := controller.NewController(pi, controllerEntityID, sched, acmpCli, le)
	hm := hooks.NewManager(cfg.Hooks, logger.Logger().With("component", "hooks"))
	ctrl.SetHookManager(hm)
	defer hm.Close()
	ctrl.Start()
	defer ctrl.Stop()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if guard, ok := ctrl.Registry().Guard(target); ok {
			if tree := guard.Entity().Tree(); tree != nil {
				return guard.Entity(), nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	if guard, ok := ctrl.Registry().Guard(target); ok {
		return guard.Entity(), nil
	}
	return nil, avdeccerrors.NewTransportError("avdecc-dump.dump",
		fmt.Errorf("entity %s did not appear within %s", target, timeout))
}
