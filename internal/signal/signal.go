// Package signal derives the fixed set of analytical indicators that
// drive retrieval-query expansion and prompt assembly. Signals are pure
// functions of the normalized metrics and provider change records:
// equal inputs always yield the identical Set.
package signal

import (
	"strings"

	"memberlens/internal/metrics"
)

// Thresholds holds the fixed cutoffs applied when classifying a
// membership change. They may be overridden from the config file but
// never change mid-process.
type Thresholds struct {
	// RetroDominantFraction is the share of the drop that retroactive
	// terminations must reach before the drop counts as retro-driven.
	RetroDominantFraction float64 `yaml:"retro_dominant_fraction"`

	// DropPctHigh and DropCountHigh classify a drop as significant.
	DropPctHigh   float64 `yaml:"drop_pct_high"`
	DropCountHigh int64   `yaml:"drop_count_high"`

	// NewCountHigh and NewPctHigh classify additions as significant.
	NewCountHigh int64   `yaml:"new_count_high"`
	NewPctHigh   float64 `yaml:"new_pct_high"`

	// NetSmallFraction bounds |net change| relative to the drop for the
	// churn pattern (big drops offset by big additions).
	NetSmallFraction float64 `yaml:"net_small_fraction"`
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RetroDominantFraction: 0.30,
		DropPctHigh:           10,
		DropCountHigh:         50000,
		NewCountHigh:          30000,
		NewPctHigh:            8,
		NetSmallFraction:      0.25,
	}
}

// Set is the complete signal set for one query. Every field is always
// populated; booleans default to false rather than being omitted, so a
// serialized Set always carries the full enumeration.
type Set struct {
	DroppedCount       int64   `json:"dropped_mbr_cnt"`
	DroppedPct         float64 `json:"dropped_per"`
	NewCount           int64   `json:"new_mbr_cnt"`
	NewPct             float64 `json:"new_per"`
	NetChange          int64   `json:"net_change"`
	IsIncrease         bool    `json:"is_increase"`
	IsDecrease         bool    `json:"is_decrease"`
	Movement           bool    `json:"movement"`
	RetroDominant      bool    `json:"retro_dominant"`
	DropHigh           bool    `json:"drop_high"`
	Churn              bool    `json:"churn"`
	ChurnRatio         float64 `json:"churn_ratio"`
	TermedKeyChanged   bool    `json:"has_termed_key"`
	FileIDChanged      bool    `json:"has_file_id"`
	PlanCarrierChanged bool    `json:"has_plan_carrier_id"`
	NetworkIDChanged   bool    `json:"has_network_id"`
	ChangeCount        int     `json:"change_count"`
}

// Compute derives the signal set from normalized metrics and the
// organization's provider change records. Every ratio guards its zero
// denominator: a zero drop count can never make the drop retro-driven
// and a zero prior count yields a zero churn ratio.
func Compute(m metrics.Membership, changes []metrics.ProviderChange, th Thresholds) Set {
	s := Set{
		DroppedCount: m.DroppedCount,
		DroppedPct:   m.DroppedPct,
		NewCount:     m.NewCount,
		NewPct:       m.NewPct,
		NetChange:    m.NetChange,
		IsIncrease:   m.NetChange > 0,
		IsDecrease:   m.NetChange < 0,
		Movement:     m.Movement,
		ChangeCount:  len(changes),
	}

	if m.DroppedCount > 0 {
		s.RetroDominant = float64(m.RetroTermCount) >= th.RetroDominantFraction*float64(m.DroppedCount)
	}
	if m.PriorMembers > 0 {
		s.ChurnRatio = float64(m.DroppedCount) / float64(m.PriorMembers)
	}

	s.DropHigh = m.DroppedPct > th.DropPctHigh || m.DroppedCount > th.DropCountHigh

	newHigh := m.NewCount > th.NewCountHigh || m.NewPct > th.NewPctHigh
	netSmall := false
	if m.DroppedCount > 0 {
		netSmall = float64(absInt64(m.NetChange)) < th.NetSmallFraction*float64(m.DroppedCount)
	}
	s.Churn = s.DropHigh && newHigh && netSmall

	s.TermedKeyChanged = anyKeyType(changes, "termed key")
	s.FileIDChanged = anyFieldContains(changes, "file_id")
	s.PlanCarrierChanged = anyFieldContains(changes, "plan_carrier_id")
	s.NetworkIDChanged = anyFieldContains(changes, "network_id")

	return s
}

// anyKeyType reports whether any change record carries the exact key
// type, compared case-insensitively.
func anyKeyType(changes []metrics.ProviderChange, keyType string) bool {
	for _, c := range changes {
		if strings.EqualFold(c.KeyType, keyType) {
			return true
		}
	}
	return false
}

// anyFieldContains matches the needle as a lowercase substring of a
// record's changed keys or test type.
func anyFieldContains(changes []metrics.ProviderChange, needle string) bool {
	for _, c := range changes {
		if strings.Contains(strings.ToLower(c.KeysChanged), needle) ||
			strings.Contains(strings.ToLower(c.TestType), needle) {
			return true
		}
	}
	return false
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
