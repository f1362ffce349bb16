// Package query builds the retrieval query sent to the rulebook index.
// Expansion is deterministic: fragments are appended in a fixed rule
// order, never in map-iteration order, so equal signal sets always
// produce byte-identical queries.
package query

import (
	"strings"

	"memberlens/internal/signal"
)

// BaseQuery is the fixed phrase every expansion starts from.
const BaseQuery = "membership drop explanation rules provider configuration changes retro termination movement churn"

// expansionRule appends its fragment when the guarding signal is
// active.
type expansionRule struct {
	active   func(signal.Set) bool
	fragment string
}

// expansionRules apply in declaration order.
var expansionRules = []expansionRule{
	{func(s signal.Set) bool { return s.RetroDominant }, "retro_term_mem_count retroactive terminations"},
	{func(s signal.Set) bool { return s.TermedKeyChanged }, "termed key"},
	{func(s signal.Set) bool { return s.FileIDChanged }, "file_id mapping"},
	{func(s signal.Set) bool { return s.PlanCarrierChanged }, "plan_carrier_id carrier mapping"},
	{func(s signal.Set) bool { return s.NetworkIDChanged }, "network_id network mapping"},
}

// Expand returns the retrieval query for a signal set: the base phrase
// plus one fragment per active rule, joined by single spaces.
func Expand(s signal.Set) string {
	parts := []string{BaseQuery}
	for _, r := range expansionRules {
		if r.active(s) {
			parts = append(parts, r.fragment)
		}
	}
	return strings.Join(parts, " ")
}
