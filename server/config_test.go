package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRulesRegistryMissingFile(t *testing.T) {
	_, err := LoadRulesRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigMissing)
}

func TestLoadRulesRegistryParsesAndSortsSteps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := `
duel:
  teamSize: 2
  numTeams: 2
  skillTolerance: 25
  maxLatency: 120
  expandSearchSteps:
    - afterSeconds: 30
      newTolerance: 100
    - afterSeconds: 10
      newTolerance: 50
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	registry, err := LoadRulesRegistry(path)
	require.NoError(t, err)

	rules, ok := registry.Lookup("duel")
	require.True(t, ok)
	require.Len(t, rules.ExpandSearchSteps, 2)
	assert.Equal(t, 10.0, rules.ExpandSearchSteps[0].AfterSeconds, "steps must sort ascending")
}

func TestLoadRulesRegistryDefaultsMaxLatency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := "duel:\n  teamSize: 2\n  numTeams: 2\n  skillTolerance: 25\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	registry, err := LoadRulesRegistry(path)
	require.NoError(t, err)
	rules, _ := registry.Lookup("duel")
	assert.Equal(t, 150, rules.MaxLatency)
}

func TestLoadEngineConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadEngineConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	want := DefaultEngineConfig()
	assert.Equal(t, want.TickInterval, cfg.TickInterval)
	assert.Equal(t, want.TicketTTL, cfg.TicketTTL)
}

func TestLoadEngineConfigResolvesStoreEndpointFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	doc := "storeEndpoint: MATCHENGINE_STORE_DSN\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	t.Setenv("MATCHENGINE_STORE_DSN", "postgres://localhost/matchengine")
	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/matchengine", cfg.StoreEndpoint)
}

func TestLoadEngineConfigUnsetStoreEndpointMeansMemoryBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	doc := "storeEndpoint: MATCHENGINE_UNSET_DSN\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.StoreEndpoint, "an unset endpoint variable must not leak the variable name as a DSN")
}

func TestLoadEngineConfigSecondsWireFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	doc := "tickIntervalSeconds: 5\nticketTTLSeconds: 120\nmetricsAddr: \":9999\"\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadEngineConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.TickInterval)
	assert.Equal(t, 120*time.Second, cfg.TicketTTL)
	assert.Equal(t, ":9999", cfg.MetricsAddr)
}
