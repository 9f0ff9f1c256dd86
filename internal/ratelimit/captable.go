package ratelimit

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/aegis-run/governor/internal/store"
)

// TierCaps is one tier's row in spec.md §4.9's per-tier cap table.
type TierCaps struct {
	MaxCallsPerDay             int
	MaxCallsPerHour            int
	MaxCallsPerEndpointPerHour int
	MaxCostPerCall             float64
	// BurstPerSecond and BurstCapacity configure the token-bucket smoother
	// that runs before the window counters; BurstPerSecond<=0 disables it
	// for the tier (the window counters alone still apply).
	BurstPerSecond float64
	BurstCapacity  int
}

type rawCaps struct {
	MaxCallsPerDay             int     `yaml:"max_calls_per_day"`
	MaxCallsPerHour            int     `yaml:"max_calls_per_hour"`
	MaxCallsPerEndpointPerHour int     `yaml:"max_calls_per_endpoint_per_hour"`
	MaxCostPerCall             float64 `yaml:"max_cost_per_call"`
	BurstPerSecond             float64 `yaml:"burst_per_second"`
	BurstCapacity              int     `yaml:"burst_capacity"`
}

type rawConfig struct {
	Tiers map[string]rawCaps `yaml:"tiers"`
}

// CapTable is the immutable, loaded-once tier→caps table. Unlike
// ratecontrol.go's package-level `loaded`/`initialized` globals, this is an
// instance a caller constructs and threads explicitly — no process-wide
// mutable state.
type CapTable struct {
	caps map[store.Tier]TierCaps
}

var defaultPaths = []string{
	os.Getenv("GOVERNOR_RATELIMIT_PATH"),
	"/app/config/ratelimits.yaml",
	"./config/ratelimits.yaml",
}

// NewCapTable loads a tier cap table from a YAML file shaped like:
//
//	tiers:
//	  free: {max_calls_per_day: 0, max_calls_per_hour: 0, max_calls_per_endpoint_per_hour: 0, max_cost_per_call: 0}
//	  pro:  {max_calls_per_day: 200, max_calls_per_hour: 30, max_calls_per_endpoint_per_hour: 15, max_cost_per_call: 0.50}
//
// An empty path triggers the same default-locations-then-upward-search
// resolution as internal/pricing.NewTable.
func NewCapTable(path string) (*CapTable, error) {
	if path == "" {
		for _, p := range defaultPaths {
			if p == "" {
				continue
			}
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		if p, ok := findUpConfig("ratelimits.yaml"); ok {
			path = p
		}
	}
	if path == "" {
		return &CapTable{caps: map[store.Tier]TierCaps{}}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: read cap table %s: %w", path, err)
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ratelimit: parse cap table %s: %w", path, err)
	}
	caps := make(map[store.Tier]TierCaps, len(raw.Tiers))
	for tier, c := range raw.Tiers {
		caps[store.Tier(tier)] = TierCaps{
			MaxCallsPerDay:             c.MaxCallsPerDay,
			MaxCallsPerHour:            c.MaxCallsPerHour,
			MaxCallsPerEndpointPerHour: c.MaxCallsPerEndpointPerHour,
			MaxCostPerCall:             c.MaxCostPerCall,
			BurstPerSecond:             c.BurstPerSecond,
			BurstCapacity:              c.BurstCapacity,
		}
	}
	return &CapTable{caps: caps}, nil
}

// For returns tier's caps, or a zero-value (deny-everything) TierCaps if the
// tier has no row — an unconfigured tier must never be treated as unlimited.
func (t *CapTable) For(tier store.Tier) TierCaps {
	return t.caps[tier]
}

// findUpConfig walks parent directories looking for config/ratelimits.yaml,
// mirroring internal/pricing.findUpConfig's upward search idiom.
func findUpConfig(filename string) (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", filename)
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		parent := filepath.Dir(wd)
		if parent == wd {
			break
		}
		wd = parent
	}
	return "", false
}
