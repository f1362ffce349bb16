// Package warehouse provides read access to the membership analytics
// warehouse: one membership_impact row per organization plus that
// organization's provider configuration change records.
package warehouse

import (
	"context"

	"memberlens/internal/metrics"
)

// Store is the warehouse read interface used by the analyst and the
// HTTP API.
type Store interface {
	// Membership returns the organization's raw membership_impact row
	// keyed by column name, or (nil, nil) when the organization has no
	// row.
	Membership(ctx context.Context, orgCode string) (map[string]any, error)

	// ProviderChanges returns the organization's provider configuration
	// change records in change-date order. No records is ([], nil).
	ProviderChanges(ctx context.Context, orgCode string) ([]metrics.ProviderChange, error)

	// Organizations lists every organization in the warehouse, largest
	// prior membership first.
	Organizations(ctx context.Context) ([]OrgSummary, error)

	Close() error
}

// OrgSummary is one row of the organization listing.
type OrgSummary struct {
	OrgCode        string `json:"org_cd"`
	PriorMembers   int64  `json:"prior_members"`
	CurrentMembers int64  `json:"current_members"`
	NetChange      int64  `json:"net_change"`
	DroppedCount   int64  `json:"dropped_mbr_cnt"`
	NewCount       int64  `json:"new_mbr_cnt"`
}
