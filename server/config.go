package server

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// RulesRegistry is a read-only per-mode rules lookup, loaded once at
// startup. Reload is not supported; changing rules means restarting the
// engine.
type RulesRegistry struct {
	rules map[string]ModeRules
}

// LoadRulesRegistry reads the rules document from path (YAML; plain
// JSON documents parse too). A missing file is ErrConfigMissing, which
// the caller should treat as fatal.
func LoadRulesRegistry(path string) (*RulesRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigMissing
		}
		return nil, fmt.Errorf("matchengine: reading rules document: %w", err)
	}

	raw := map[string]ModeRules{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("matchengine: parsing rules document: %w", err)
	}

	for mode, r := range raw {
		if r.MaxLatency == 0 {
			r.MaxLatency = 150
		}
		sort.SliceStable(r.ExpandSearchSteps, func(i, j int) bool {
			return r.ExpandSearchSteps[i].AfterSeconds < r.ExpandSearchSteps[j].AfterSeconds
		})
		raw[mode] = r
	}

	return &RulesRegistry{rules: raw}, nil
}

// NewRulesRegistry builds a registry directly from an in-memory map,
// useful for tests and for embedding the engine in another program.
func NewRulesRegistry(rules map[string]ModeRules) *RulesRegistry {
	reg := &RulesRegistry{rules: make(map[string]ModeRules, len(rules))}
	for mode, r := range rules {
		if r.MaxLatency == 0 {
			r.MaxLatency = 150
		}
		sort.SliceStable(r.ExpandSearchSteps, func(i, j int) bool {
			return r.ExpandSearchSteps[i].AfterSeconds < r.ExpandSearchSteps[j].AfterSeconds
		})
		reg.rules[mode] = r
	}
	return reg
}

// Lookup returns the ModeRules for mode and whether it exists.
func (r *RulesRegistry) Lookup(mode string) (ModeRules, bool) {
	rules, ok := r.rules[mode]
	return rules, ok
}

// Modes returns the configured mode names sorted alphabetically, so the
// scheduler iterates modes in a deterministic order. The order in which
// the rules document declares the modes is not preserved.
func (r *RulesRegistry) Modes() []string {
	modes := make([]string, 0, len(r.rules))
	for m := range r.rules {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}

// EngineConfig is the expansion's engine.yaml document: everything that
// is not part of the per-mode rules contract.
type EngineConfig struct {
	TickInterval  time.Duration
	TicketTTL     time.Duration
	StoreEndpoint string
	MetricsAddr   string
	LogPath       string
}

// engineConfigDoc mirrors EngineConfig for YAML purposes; durations are
// expressed in seconds on the wire since yaml.v3 has no time.Duration
// scalar of its own.
type engineConfigDoc struct {
	TickIntervalSeconds float64 `yaml:"tickIntervalSeconds"`
	TicketTTLSeconds    float64 `yaml:"ticketTTLSeconds"`
	StoreEndpoint       string  `yaml:"storeEndpoint"`
	MetricsAddr         string  `yaml:"metricsAddr"`
	LogPath             string  `yaml:"logPath"`
}

// DefaultEngineConfig returns the default engine settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickInterval: 2 * time.Second,
		TicketTTL:    600 * time.Second,
		MetricsAddr:  ":9090",
	}
}

// LoadEngineConfig reads engine.yaml from path, falling back to defaults
// for any field the document omits. A missing file is not an error here
// (unlike the rules document) since sensible defaults exist; only the
// rules document is load-bearing enough to be fatal.
func LoadEngineConfig(path string) (EngineConfig, error) {
	cfg := DefaultEngineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("matchengine: reading engine config: %w", err)
	}

	var doc engineConfigDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("matchengine: parsing engine config: %w", err)
	}

	if doc.TickIntervalSeconds > 0 {
		cfg.TickInterval = time.Duration(doc.TickIntervalSeconds * float64(time.Second))
	}
	if doc.TicketTTLSeconds > 0 {
		cfg.TicketTTL = time.Duration(doc.TicketTTLSeconds * float64(time.Second))
	}
	if doc.StoreEndpoint != "" {
		cfg.StoreEndpoint = doc.StoreEndpoint
	}
	if doc.MetricsAddr != "" {
		cfg.MetricsAddr = doc.MetricsAddr
	}
	if doc.LogPath != "" {
		cfg.LogPath = doc.LogPath
	}

	// storeEndpoint names the environment variable holding the actual
	// endpoint, so the DSN itself never lands in a config file. An unset
	// variable means the in-memory backend.
	if cfg.StoreEndpoint != "" {
		cfg.StoreEndpoint = os.Getenv(cfg.StoreEndpoint)
	}
	return cfg, nil
}
