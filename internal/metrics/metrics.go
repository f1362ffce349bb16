// Package metrics normalizes raw warehouse rows into typed membership
// metrics. Raw values arrive as whatever the driver produced (nil,
// int64, float64, string, []byte); every numeric accessor substitutes
// zero for null or unparseable input so downstream arithmetic never
// sees a missing value. A null dropped count means zero members
// dropped, not insufficient data.
package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// Raw column names of the membership_impact table. The prior and
// current period columns are fixed by the warehouse build (Nov 2025 vs
// Dec 2025 production snapshots).
const (
	ColPriorMembers   = "mbr_cnt_x202511m11_prd"
	ColCurrentMembers = "mbr_cnt_x202512m12_prd"
	ColDroppedCount   = "dropped_mbr_cnt_x202512m12_prd_vs_x202511m11_prd"
	ColDroppedPct     = "dropped_per"
	ColNewCount       = "new_mbr_cnt_x202512m12_prd_vs_x202511m11_prd"
	ColNewPct         = "new_members_percentage"
	ColNetChange      = "com_mbr_cnt_x202512m12_prd_vs_x202511m11_prd"
	ColRetroTermCount = "retro_term_mem_count"
	ColRetroAddCount  = "retro_add_mem_count"
	ColMovedFrom      = "moved_from_org_cd"
	ColMovedTo        = "moved_to_org_cd"
)

// Membership is one organization's normalized membership snapshot,
// built fresh per query and immutable afterwards.
type Membership struct {
	OrgCode        string  `json:"org_cd"`
	PriorMembers   int64   `json:"prior_members"`
	CurrentMembers int64   `json:"current_members"`
	DroppedCount   int64   `json:"dropped_mbr_cnt"`
	DroppedPct     float64 `json:"dropped_per"`
	NewCount       int64   `json:"new_mbr_cnt"`
	NewPct         float64 `json:"new_per"`
	NetChange      int64   `json:"net_change"`
	RetroTermCount int64   `json:"retro_term_mem_count"`
	Movement       bool    `json:"movement"`
}

// ProviderChange is one provider configuration change record for an
// organization. KeysChanged and TestType are free-form fields matched
// by substring during signal computation.
type ProviderChange struct {
	OrgCode     string `json:"org_cd"`
	KeyType     string `json:"key_type"`
	KeysChanged string `json:"keys_changed"`
	TestType    string `json:"test_type"`
	ChangeDate  string `json:"chg_dt"`
}

// FromRow builds a Membership from a raw warehouse row. Net change is
// computed from the prior and current counts rather than read from the
// warehouse column, so the two can never disagree.
func FromRow(orgCode string, row map[string]any) Membership {
	prior := AsInt(row[ColPriorMembers])
	current := AsInt(row[ColCurrentMembers])
	return Membership{
		OrgCode:        orgCode,
		PriorMembers:   prior,
		CurrentMembers: current,
		DroppedCount:   AsInt(row[ColDroppedCount]),
		DroppedPct:     AsFloat(row[ColDroppedPct]),
		NewCount:       AsInt(row[ColNewCount]),
		NewPct:         AsFloat(row[ColNewPct]),
		NetChange:      current - prior,
		RetroTermCount: AsInt(row[ColRetroTermCount]),
		Movement:       orgCodePresent(row[ColMovedFrom]) || orgCodePresent(row[ColMovedTo]),
	}
}

// AsInt converts a raw warehouse value to an int64, substituting 0 for
// nil and unparseable values. Float renderings of integers ("123.0")
// are accepted and truncated toward zero.
func AsInt(v any) int64 {
	return int64(AsFloat(v))
}

// AsFloat converts a raw warehouse value to a float64, substituting 0
// for nil and unparseable values.
func AsFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		return parseFloat(t)
	case []byte:
		return parseFloat(string(t))
	default:
		return parseFloat(fmt.Sprint(t))
	}
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// orgCodePresent reports whether a movement column carries a real org
// code. The warehouse stores the literal string "null" for absent
// codes, so that counts as missing alongside NULL and empty.
func orgCodePresent(v any) bool {
	var s string
	switch t := v.(type) {
	case nil:
		return false
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, "null")
}
