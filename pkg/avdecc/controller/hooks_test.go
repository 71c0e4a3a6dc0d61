package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avdecc-go/avdecc/pkg/avdecc/hooks"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocol"
	"github.com/avdecc-go/avdecc/pkg/avdecc/transport"
)

// recordingHook stores every event it is fired with, for assertions.
type recordingHook struct {
	mu     sync.Mutex
	id     string
	events []hooks.Event
}

func (h *recordingHook) Execute(_ context.Context, event hooks.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}
func (h *recordingHook) Type() string { return "recording" }
func (h *recordingHook) ID() string   { return h.id }

func (h *recordingHook) snapshot() []hooks.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hooks.Event(nil), h.events...)
}

func TestControllerFiresEntityAcquiredHook(t *testing.T) {
	bus := transport.NewVirtualBus()
	ctrl, stopCtrl := newTestController(t, bus, "test.hooks.controller", 0x01, 0xC0FFEE)
	defer stopCtrl()

	hm := hooks.NewManager(hooks.DefaultConfig(), nil)
	defer hm.Close()
	ctrl.SetHookManager(hm)

	onlineHook := &recordingHook{id: "online"}
	acquiredHook := &recordingHook{id: "acquired"}
	require.NoError(t, hm.Register(hooks.EventEntityAcquired, acquiredHook))
	require.NoError(t, hm.Register(hooks.EventEntityOnline, onlineHook))

	entityPI, stopEntity := newPairOnBus(t, bus, "test.hooks.entity", 0x02)
	defer stopEntity()
	echoAEM(entityPI)

	target := protocol.EntityID(0xBEEF)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := ctrl.AcquireEntity(ctx, target, protocol.MacAddress{0x02}, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(acquiredHook.snapshot()) == 1
	}, time.Second, 10*time.Millisecond)

	events := acquiredHook.snapshot()
	require.Equal(t, hooks.EventEntityAcquired, events[0].Type)
	require.Equal(t, target.String(), events[0].EntityID)
}
