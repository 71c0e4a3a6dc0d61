package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ShellHook runs an external command when an event fires, with event
// fields exposed as AVDECC_* environment variables.
type ShellHook struct {
	id       string
	command  string
	args     []string
	env      []string
	passJSON bool
}

// NewShellHook creates a hook that runs scriptPath with bash.
func NewShellHook(id, scriptPath string) *ShellHook {
	return &ShellHook{id: id, command: "/bin/bash", args: []string{scriptPath}}
}

// NewShellHookWithCommand creates a hook running an arbitrary command.
func NewShellHookWithCommand(id, command string, args []string) *ShellHook {
	return &ShellHook{id: id, command: command, args: args}
}

// SetPassJSON enables also piping the event as JSON on the child's stdin.
func (h *ShellHook) SetPassJSON(passJSON bool) *ShellHook {
	h.passJSON = passJSON
	return h
}

// SetEnv adds fixed environment variables passed to every invocation.
func (h *ShellHook) SetEnv(env []string) *ShellHook {
	h.env = env
	return h
}

func (h *ShellHook) Execute(ctx context.Context, event Event) error {
	cmd := exec.CommandContext(ctx, h.command, h.args...)
	cmd.Env = append(cmd.Env, h.buildEnvironment(event)...)

	if h.passJSON {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("shell hook %s: stdin pipe: %w", h.id, err)
		}
		go func() {
			defer stdin.Close()
			_ = json.NewEncoder(stdin).Encode(event)
		}()
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s: %w", h.id, err)
	}
	return nil
}

func (h *ShellHook) Type() string { return "shell" }
func (h *ShellHook) ID() string   { return h.id }

func (h *ShellHook) buildEnvironment(event Event) []string {
	env := append([]string{}, h.env...)
	env = append(env, "AVDECC_EVENT_TYPE="+string(event.Type))
	env = append(env, fmt.Sprintf("AVDECC_TIMESTAMP=%d", event.Timestamp))
	if event.EntityID != "" {
		env = append(env, "AVDECC_ENTITY_ID="+event.EntityID)
	}
	for key, value := range event.Data {
		env = append(env, "AVDECC_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}
	return env
}
