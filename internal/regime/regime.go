// Package regime exposes the volatility-regime classification consumed by the
// risk gate. Classification itself is a market-data concern and lives outside
// this engine; the static classifier covers config-pinned operation.
package regime

import (
	"context"
	"fmt"
	"strings"
)

// Regime is the current volatility classification.
type Regime int

const (
	Calm Regime = iota
	Normal
	Elevated
	Crisis
)

func (r Regime) String() string {
	switch r {
	case Calm:
		return "calm"
	case Normal:
		return "normal"
	case Elevated:
		return "elevated"
	case Crisis:
		return "crisis"
	default:
		return "unknown"
	}
}

// Parse converts a config string into a Regime.
func Parse(s string) (Regime, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "calm":
		return Calm, nil
	case "normal":
		return Normal, nil
	case "elevated":
		return Elevated, nil
	case "crisis":
		return Crisis, nil
	default:
		return Normal, fmt.Errorf("unknown regime %q", s)
	}
}

// Classifier reports the regime for a run date.
type Classifier interface {
	Classify(ctx context.Context, asOf string) (Regime, error)
}

// Static always answers the same regime. Used when the operator pins the
// regime in config or an external classifier is unavailable.
type Static struct {
	Regime Regime
}

func (s Static) Classify(context.Context, string) (Regime, error) {
	return s.Regime, nil
}

// HeatCeilings maps each regime to its portfolio heat ceiling as a fraction
// of portfolio value. The ceiling shrinks as the regime escalates.
type HeatCeilings struct {
	Calm     float64
	Normal   float64
	Elevated float64
	Crisis   float64
}

// For returns the ceiling fraction for a regime.
func (h HeatCeilings) For(r Regime) float64 {
	switch r {
	case Calm:
		return h.Calm
	case Elevated:
		return h.Elevated
	case Crisis:
		return h.Crisis
	default:
		return h.Normal
	}
}
