package common

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClampCities(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.Equal(t, 1, ClampCities(1, log))
	require.Equal(t, 64, ClampCities(64, log))
	require.Equal(t, DefaultCities, ClampCities(0, log))
	require.Equal(t, DefaultCities, ClampCities(-3, log))
	require.Equal(t, DefaultCities, ClampCities(1000, log))
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cities: 12\nstep_timeout: 250ms\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 12, cfg.Cities)
	require.Equal(t, 250*time.Millisecond, cfg.StepTimeout.Std())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSimConfigCarriesCLISettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cities = 5
	cfg.Seed = 99
	cfg.StepTimeout = Duration(time.Second)

	sim := cfg.SimConfig()
	require.NoError(t, sim.Validate())
	require.Equal(t, 5, sim.Sites)
	require.Equal(t, int64(99), sim.Seed)
	require.Equal(t, time.Second, sim.StepTimeout)
}
