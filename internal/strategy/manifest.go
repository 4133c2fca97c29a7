package strategy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"skipper/internal/money"
)

// ManifestEntry is one strategy declaration in strategies.yaml.
type ManifestEntry struct {
	ID                  string         `yaml:"id"`
	Name                string         `yaml:"name"`
	Type                string         `yaml:"type"` // momentum | inbox
	Enabled             bool           `yaml:"enabled"`
	AllocatedCapitalUSD float64        `yaml:"allocated_capital_usd"`
	Universe            []string       `yaml:"universe"`
	Params              map[string]any `yaml:"params"`
}

// Manifest is the parsed strategies.yaml.
type Manifest struct {
	Strategies []ManifestEntry `yaml:"strategies"`
}

// LoadManifest reads and sanity-checks strategies.yaml.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading strategy manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing strategy manifest %s: %w", path, err)
	}
	seen := make(map[string]struct{}, len(m.Strategies))
	for i := range m.Strategies {
		e := &m.Strategies[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.ID == "" {
			return nil, fmt.Errorf("strategy #%d: id is required", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("strategy id %q declared twice", e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.Name == "" {
			e.Name = e.ID
		}
		if e.AllocatedCapitalUSD < 0 {
			return nil, fmt.Errorf("strategy %s: allocated capital must be >= 0", e.ID)
		}
		for j, sym := range e.Universe {
			e.Universe[j] = strings.ToUpper(strings.TrimSpace(sym))
		}
	}
	return &m, nil
}

// AllocatedCents returns the entry's capital allocation in minor units.
func (e ManifestEntry) AllocatedCents() money.Cents {
	return money.FromFloat(e.AllocatedCapitalUSD)
}

func (e ManifestEntry) intParam(key string, fallback int) int {
	v, ok := e.Params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

func (e ManifestEntry) stringParam(key, fallback string) string {
	if v, ok := e.Params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
