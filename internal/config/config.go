// Package config loads controller runtime configuration from YAML, merging
// a loaded document over built-in defaults so a partial file only overrides
// the fields it sets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"

	"github.com/avdecc-go/avdecc/pkg/avdecc/hooks"
	"github.com/avdecc-go/avdecc/pkg/avdecc/protocolif"
)

// Config is the controller's runtime configuration surface: network
// interface selection, executor naming, protocol timing overrides, and
// enumeration behavior toggles.
type Config struct {
	// Interface is the network interface name the real (pcap-backed)
	// transport binds to. Ignored by the virtual transport.
	Interface string `yaml:"interface"`

	// ExecutorName is the name registered with the process-wide
	// ExecutorManager (spec §9 "shared executor").
	ExecutorName string `yaml:"executorName"`

	LogLevel string `yaml:"logLevel"`

	AECP AECPConfig `yaml:"aecp"`
	ACMP ACMPConfig `yaml:"acmp"`

	// FastEnumeration enables the Milan GET_DYNAMIC_INFO batched read path
	// during entity enumeration (spec §4.I).
	FastEnumeration bool `yaml:"fastEnumeration"`

	// EntityModelCacheDir is where serialized static trees are persisted,
	// keyed by entityModelID (spec §4.I "Entity-model cache").
	EntityModelCacheDir string `yaml:"entityModelCacheDir"`

	// DiscoveryTimeout is how long a one-shot tool (avdecc-dump) listens
	// for ADP advertisements before acting on what it has seen.
	DiscoveryTimeout time.Duration `yaml:"discoveryTimeout"`

	// Hooks configures the event-hook manager (shell/webhook/stdio) the
	// controller fires on entity lifecycle and connection events.
	Hooks hooks.Config `yaml:"hooks"`
}

// AECPConfig overrides AECP state-machine timing (spec §4.E).
type AECPConfig struct {
	AEMCommandTimeout    time.Duration `yaml:"aemCommandTimeout"`
	AddressAccessTimeout time.Duration `yaml:"addressAccessTimeout"`
	VendorUniqueTimeout  time.Duration `yaml:"vendorUniqueTimeout"`
	Retries              int           `yaml:"retries"`
}

// ACMPConfig overrides ACMP state-machine timing (spec §4.F).
type ACMPConfig struct {
	CommandTimeout time.Duration `yaml:"commandTimeout"`
	Retries        int           `yaml:"retries"`
}

// Default returns the built-in configuration defaults.
func Default() Config {
	return Config{
		Interface:           "",
		ExecutorName:        "avdecc.controller",
		LogLevel:            "info",
		FastEnumeration:     true,
		EntityModelCacheDir: "",
		DiscoveryTimeout:    5 * time.Second,
		Hooks:               hooks.DefaultConfig(),
		AECP: AECPConfig{
			AEMCommandTimeout:    250 * time.Millisecond,
			AddressAccessTimeout: 250 * time.Millisecond,
			VendorUniqueTimeout:  250 * time.Millisecond,
			Retries:              1,
		},
		ACMP: ACMPConfig{
			CommandTimeout: 250 * time.Millisecond,
			Retries:        1,
		},
	}
}

// Timing converts the AECP/ACMP sections into the protocolif.Timing a
// Protocol Interface is constructed with. protocolif.Timing carries one
// Retries budget shared by every command family; AECP's Retries wins
// since AEM/address-access/vendor-unique commands dominate a typical
// session, and ACMP's own Retries is not read (both default to the same
// value).
func (c Config) Timing() protocolif.Timing {
	return protocolif.Timing{
		AEMCommandTimeout:    c.AECP.AEMCommandTimeout,
		AddressAccessTimeout: c.AECP.AddressAccessTimeout,
		VendorUniqueTimeout:  c.AECP.VendorUniqueTimeout,
		AcmpCommandTimeout:   c.ACMP.CommandTimeout,
		Retries:              c.AECP.Retries,
	}
}

// Load reads a YAML document from path and merges it over Default(). A
// missing file is not an error: Load returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	// mergo.WithOverride lets non-zero fields in the loaded document win over
	// the defaults; zero-valued fields in the document fall back silently.
	if err := mergo.Merge(&cfg, loaded, mergo.WithOverride); err != nil {
		return cfg, fmt.Errorf("config: merge %s: %w", path, err)
	}
	return cfg, nil
}
