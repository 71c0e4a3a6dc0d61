package hooks

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBuildsAndRenders(t *testing.T) {
	event := NewEvent(EventEntityOnline).
		WithEntityID("0x0011223344556677").
		WithData("model_id", uint64(42))

	require.Equal(t, EventEntityOnline, event.Type)
	require.Equal(t, "0x0011223344556677", event.EntityID)
	require.Equal(t, uint64(42), event.Data["model_id"])
	require.Equal(t, "entity_online:0x0011223344556677", event.String())
}

func TestShellHookIdentity(t *testing.T) {
	hook := NewShellHook("test-hook", "/bin/echo")
	require.Equal(t, "shell", hook.Type())
	require.Equal(t, "test-hook", hook.ID())

	custom := NewShellHookWithCommand("custom", "/bin/true", nil)
	require.Equal(t, "/bin/true", custom.command)
}

func TestManagerRegisterTriggerUnregister(t *testing.T) {
	manager := NewManager(DefaultConfig(), nil)
	defer manager.Close()

	hook := NewShellHook("noop", "/bin/true")
	require.NoError(t, manager.Register(EventEntityOnline, hook))

	// Triggering with no waiting observer should not block or panic.
	manager.TriggerEvent(context.Background(), *NewEvent(EventEntityOnline))

	require.True(t, manager.Unregister(EventEntityOnline, "noop"))
	require.False(t, manager.Unregister(EventEntityOnline, "noop"))
}

func TestStdioHookJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	hook := NewStdioHook("stdio-test", "json").SetOutput(&buf)
	require.Equal(t, "stdio", hook.Type())

	err := hook.Execute(context.Background(), *NewEvent(EventEntityOffline).WithEntityID("0xBEEF"))
	require.NoError(t, err)
	require.Contains(t, buf.String(), "AVDECC_EVENT:")
	require.Contains(t, buf.String(), "entity_offline")
}

func TestStdioHookEnvFormat(t *testing.T) {
	var buf bytes.Buffer
	hook := NewStdioHook("stdio-test", "env").SetOutput(&buf)

	err := hook.Execute(context.Background(), *NewEvent(EventStreamConnected).WithEntityID("0xBEEF").WithData("talker", "0xCAFE"))
	require.NoError(t, err)
	lines := buf.String()
	require.True(t, strings.Contains(lines, "AVDECC_EVENT_TYPE=stream_connected"))
	require.True(t, strings.Contains(lines, "AVDECC_ENTITY_ID=0xBEEF"))
	require.True(t, strings.Contains(lines, "AVDECC_TALKER=0xCAFE"))
}

func TestWebhookHookIdentity(t *testing.T) {
	hook := NewWebhookHook("webhook-test", "https://example.invalid/hook")
	require.Equal(t, "webhook", hook.Type())
	require.Equal(t, "webhook-test", hook.ID())

	hook.AddHeader("Authorization", "Bearer token")
	require.Equal(t, "Bearer token", hook.headers["Authorization"])
}
