package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// StdioHook writes event data to an io.Writer (stderr by default) as
// either a JSON line or a block of shell-style env assignments.
type StdioHook struct {
	id     string
	format string // "json" or "env"
	output io.Writer
}

// NewStdioHook creates a stdio hook writing to stderr.
func NewStdioHook(id, format string) *StdioHook {
	return &StdioHook{id: id, format: format, output: os.Stderr}
}

// SetOutput redirects where events are written.
func (h *StdioHook) SetOutput(w io.Writer) *StdioHook {
	h.output = w
	return h
}

func (h *StdioHook) Execute(_ context.Context, event Event) error {
	switch h.format {
	case "json":
		return h.outputJSON(event)
	case "env":
		return h.outputEnv(event)
	default:
		return fmt.Errorf("stdio hook %s: unsupported format %q", h.id, h.format)
	}
}

func (h *StdioHook) Type() string { return "stdio" }
func (h *StdioHook) ID() string   { return h.id }

func (h *StdioHook) outputJSON(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("stdio hook %s: marshal: %w", h.id, err)
	}
	_, err = fmt.Fprintf(h.output, "AVDECC_EVENT: %s\n", data)
	return err
}

func (h *StdioHook) outputEnv(event Event) error {
	lines := []string{
		"# AVDECC event: " + string(event.Type),
		fmt.Sprintf("AVDECC_EVENT_TYPE=%s", event.Type),
		fmt.Sprintf("AVDECC_TIMESTAMP=%d", event.Timestamp),
	}
	if event.EntityID != "" {
		lines = append(lines, "AVDECC_ENTITY_ID="+event.EntityID)
	}
	for key, value := range event.Data {
		lines = append(lines, "AVDECC_"+strings.ToUpper(key)+"="+fmt.Sprintf("%v", value))
	}
	lines = append(lines, "")
	for _, line := range lines {
		if _, err := fmt.Fprintln(h.output, line); err != nil {
			return fmt.Errorf("stdio hook %s: %w", h.id, err)
		}
	}
	return nil
}
