package analyst

import (
	"context"

	"memberlens/internal/llm"
	"memberlens/internal/metrics"
	"memberlens/internal/warehouse"
)

// membershipRow is the standard decrease scenario: 1000 -> 850 with
// 180 dropped, 30 new, 120 retroactive terminations.
func membershipRow() map[string]any {
	return map[string]any{
		metrics.ColPriorMembers:   int64(1000),
		metrics.ColCurrentMembers: int64(850),
		metrics.ColDroppedCount:   int64(180),
		metrics.ColDroppedPct:     18.0,
		metrics.ColNewCount:       int64(30),
		metrics.ColNewPct:         3.0,
		metrics.ColRetroTermCount: int64(120),
		metrics.ColMovedFrom:      nil,
		metrics.ColMovedTo:        "null",
	}
}

type fakeStore struct {
	membershipFunc      func(ctx context.Context, orgCode string) (map[string]any, error)
	providerChangesFunc func(ctx context.Context, orgCode string) ([]metrics.ProviderChange, error)

	membershipCalls int
	providerCalls   int
}

var _ warehouse.Store = (*fakeStore)(nil)

func (f *fakeStore) Membership(ctx context.Context, orgCode string) (map[string]any, error) {
	f.membershipCalls++
	if f.membershipFunc != nil {
		return f.membershipFunc(ctx, orgCode)
	}
	return membershipRow(), nil
}

func (f *fakeStore) ProviderChanges(ctx context.Context, orgCode string) ([]metrics.ProviderChange, error) {
	f.providerCalls++
	if f.providerChangesFunc != nil {
		return f.providerChangesFunc(ctx, orgCode)
	}
	return nil, nil
}

func (f *fakeStore) Organizations(ctx context.Context) ([]warehouse.OrgSummary, error) {
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeRetriever struct {
	retrieveFunc func(ctx context.Context, query string, k int) ([]string, error)

	calls     int
	lastQuery string
	lastK     int
}

var _ Retriever = (*fakeRetriever)(nil)

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	f.calls++
	f.lastQuery = query
	f.lastK = k
	if f.retrieveFunc != nil {
		return f.retrieveFunc(ctx, query, k)
	}
	return []string{"chunk one", "chunk two"}, nil
}

type fakeLLM struct {
	completeFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	calls      int
	lastSystem string
	lastPrompt string
}

var _ llm.Client = (*fakeLLM)(nil)

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastPrompt = userPrompt
	if f.completeFunc != nil {
		return f.completeFunc(ctx, systemPrompt, userPrompt)
	}
	return "Generated analysis.", nil
}

func (f *fakeLLM) Name() string { return "fake" }
