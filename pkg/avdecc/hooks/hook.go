package hooks

import "context"

// Hook reacts to one Event. Execute should respect ctx's deadline; the
// Manager always calls it with a bounded context built from Config.Timeout.
type Hook interface {
	Execute(ctx context.Context, event Event) error
	Type() string
	ID() string
}

// Config controls hook execution: how long a single Hook gets to run,
// how many can run concurrently, and whether every event is additionally
// echoed to stdio regardless of what's explicitly registered.
type Config struct {
	Timeout     string `yaml:"timeout"`
	Concurrency int    `yaml:"concurrency"`
	StdioFormat string `yaml:"stdioFormat"` // "json", "env", or ""
}

// DefaultConfig returns sensible defaults: 30s per hook, 10 concurrent,
// stdio echo disabled.
func DefaultConfig() Config {
	return Config{
		Timeout:     "30s",
		Concurrency: 10,
		StdioFormat: "",
	}
}
