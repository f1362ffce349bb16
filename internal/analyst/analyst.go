// Package analyst orchestrates a membership impact query end to end:
// organization code extraction, warehouse lookup, signal computation,
// rulebook retrieval, prompt assembly, and generation. Run never
// returns an error. Fatal conditions (no organization code, no
// warehouse row) short-circuit into a fixed user-facing message, and
// collaborator failures past that point degrade: retrieval errors
// leave the rulebook context empty, generation errors substitute the
// deterministic fallback text. The caller always receives a populated
// response.
package analyst

import (
	"context"
	"fmt"

	"memberlens/internal/llm"
	"memberlens/internal/metrics"
	"memberlens/internal/signal"
	"memberlens/internal/warehouse"
)

const (
	// MsgNoOrgCode is returned when no organization code can be
	// extracted from the user query. No external call is made.
	MsgNoOrgCode = "Please specify an organization code like S5660_P801 or ORG_003."

	msgNoDataFmt = "No data found for %s in the warehouse. Please check the organization code."

	// SourceWarehouse marks responses produced by the direct pipeline,
	// including its fallback text path.
	SourceWarehouse = "warehouse"

	// SourceAgent marks responses produced by the session variant.
	SourceAgent = "agent"

	// DefaultTopK is the rulebook chunk count requested per query.
	DefaultTopK = 4

	// ChunkSeparator joins retrieved rulebook chunks into the prompt
	// context block.
	ChunkSeparator = "\n\n---\n\n"
)

// Analyst answers one membership question per call.
type Analyst interface {
	Run(ctx context.Context, userQuery string) *Response
}

// Response is the payload returned for every query. Data and Signals
// are nil on the fatal paths (no organization code, no warehouse row)
// and always populated otherwise, fallback text included.
type Response struct {
	Text      string              `json:"text"`
	Data      *metrics.Membership `json:"data,omitempty"`
	Signals   *signal.Set         `json:"signals,omitempty"`
	OrgCode   string              `json:"org_cd,omitempty"`
	Source    string              `json:"source,omitempty"`
	RequestID string              `json:"request_id"`
}

// Retriever fetches rulebook context for an expanded query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// New builds the analyst variant named by the config flag: "direct"
// (or empty) for the plain pipeline, "agent" for the session variant.
func New(variant string, store warehouse.Store, retriever Retriever, client llm.Client, opts Options) (Analyst, error) {
	switch variant {
	case "direct", "":
		return NewDirect(store, retriever, client, opts), nil
	case "agent":
		return NewAgent(store, retriever, client, opts), nil
	default:
		return nil, fmt.Errorf("unsupported analyst variant: %s (use 'direct' or 'agent')", variant)
	}
}
