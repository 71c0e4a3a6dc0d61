package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadPartialDocumentMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avdecc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interface: eth0\naecp:\n  retries: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth0", cfg.Interface)
	require.Equal(t, 3, cfg.AECP.Retries)
	// Untouched fields keep their default values.
	require.Equal(t, 250*time.Millisecond, cfg.AECP.AEMCommandTimeout)
	require.True(t, cfg.FastEnumeration)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestTimingConvertsAecpAndAcmpSections(t *testing.T) {
	cfg := Default()
	cfg.AECP.AEMCommandTimeout = 10 * time.Millisecond
	cfg.ACMP.CommandTimeout = 20 * time.Millisecond
	cfg.AECP.Retries = 4

	timing := cfg.Timing()
	require.Equal(t, 10*time.Millisecond, timing.AEMCommandTimeout)
	require.Equal(t, 20*time.Millisecond, timing.AcmpCommandTimeout)
	require.Equal(t, 4, timing.Retries)
}

func TestLoadDiscoveryTimeoutOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "avdecc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("discoveryTimeout: 2s\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.DiscoveryTimeout)
}
