package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"memberlens/internal/metrics"
	"memberlens/internal/prompt"
	"memberlens/internal/query"
	"memberlens/internal/signal"
)

func TestExtractOrgCode(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Why did S5660_P801 drop in December?", "S5660_P801", true},
		{"compare S5660_P801 and ORG_003", "S5660_P801", true},
		{"what happened to org 3?", "ORG_003", true},
		{"ORG_0042 membership status", "ORG_0042", true},
		{"show me org_17", "ORG_017", true},
		{"Org 250 trend", "ORG_250", true},
		{"why did membership drop?", "", false},
		{"s5660_p801 lowercase", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractOrgCode(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ExtractOrgCode(%q) = (%q, %v), want (%q, %v)", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDirectRunNoOrgCode(t *testing.T) {
	store := &fakeStore{}
	retriever := &fakeRetriever{}
	model := &fakeLLM{}
	d := NewDirect(store, retriever, model, Options{})

	resp := d.Run(context.Background(), "why did membership drop?")

	if resp.Text != MsgNoOrgCode {
		t.Errorf("text = %q, want %q", resp.Text, MsgNoOrgCode)
	}
	if resp.Data != nil || resp.Signals != nil {
		t.Error("fatal response carries data or signals")
	}
	if resp.OrgCode != "" || resp.Source != "" {
		t.Errorf("fatal response carries org_cd %q source %q", resp.OrgCode, resp.Source)
	}
	if resp.RequestID == "" {
		t.Error("response missing request id")
	}
	if store.membershipCalls != 0 || retriever.calls != 0 || model.calls != 0 {
		t.Error("fatal path reached a collaborator")
	}
}

func TestDirectRunNoData(t *testing.T) {
	store := &fakeStore{
		membershipFunc: func(ctx context.Context, orgCode string) (map[string]any, error) {
			return nil, nil
		},
	}
	retriever := &fakeRetriever{}
	model := &fakeLLM{}
	d := NewDirect(store, retriever, model, Options{})

	resp := d.Run(context.Background(), "what happened to ORG_003?")

	want := "No data found for ORG_003 in the warehouse. Please check the organization code."
	if resp.Text != want {
		t.Errorf("text = %q, want %q", resp.Text, want)
	}
	if resp.OrgCode != "ORG_003" {
		t.Errorf("org_cd = %q, want ORG_003", resp.OrgCode)
	}
	if resp.Data != nil || resp.Signals != nil {
		t.Error("no-data response carries data or signals")
	}
	if retriever.calls != 0 || model.calls != 0 {
		t.Error("no-data path reached retrieval or generation")
	}
}

func TestDirectRunWarehouseError(t *testing.T) {
	store := &fakeStore{
		membershipFunc: func(ctx context.Context, orgCode string) (map[string]any, error) {
			return nil, errors.New("connection refused")
		},
	}
	d := NewDirect(store, &fakeRetriever{}, &fakeLLM{}, Options{})

	resp := d.Run(context.Background(), "what happened to S5660_P801?")

	if !strings.HasPrefix(resp.Text, "No data found for S5660_P801") {
		t.Errorf("warehouse error not mapped to no-data message, got %q", resp.Text)
	}
}

func TestDirectRunSuccess(t *testing.T) {
	store := &fakeStore{}
	retriever := &fakeRetriever{}
	model := &fakeLLM{}
	d := NewDirect(store, retriever, model, Options{})

	resp := d.Run(context.Background(), "Why did S5660_P801 drop?")

	if resp.Text != "Generated analysis." {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Source != SourceWarehouse {
		t.Errorf("source = %q, want %q", resp.Source, SourceWarehouse)
	}
	if resp.OrgCode != "S5660_P801" {
		t.Errorf("org_cd = %q", resp.OrgCode)
	}
	if resp.Data == nil || resp.Data.NetChange != -150 {
		t.Fatalf("data not populated from warehouse row: %+v", resp.Data)
	}
	if resp.Signals == nil || !resp.Signals.RetroDominant {
		t.Fatalf("signals not computed: %+v", resp.Signals)
	}
	if resp.RequestID == "" {
		t.Error("response missing request id")
	}

	if retriever.lastK != DefaultTopK {
		t.Errorf("retrieval k = %d, want %d", retriever.lastK, DefaultTopK)
	}
	if !strings.HasPrefix(retriever.lastQuery, query.BaseQuery) {
		t.Errorf("retrieval query missing base phrase: %q", retriever.lastQuery)
	}
	if !strings.Contains(retriever.lastQuery, "retro_term_mem_count retroactive terminations") {
		t.Errorf("retrieval query missing retro fragment: %q", retriever.lastQuery)
	}

	if model.lastSystem != prompt.SystemPrompt {
		t.Error("generation not sent the analyst system prompt")
	}
	for _, want := range []string{
		`Question: "Why did S5660_P801 drop?"`,
		"KEY FINDING: Membership decreased by 150 members (18.00% drop).",
		"chunk one\n\n---\n\nchunk two",
		"**Provider Configuration Changes:** 0 change(s) detected",
	} {
		if !strings.Contains(model.lastPrompt, want) {
			t.Errorf("analysis prompt missing %q", want)
		}
	}
}

func TestDirectRunDistinctRequestIDs(t *testing.T) {
	d := NewDirect(&fakeStore{}, &fakeRetriever{}, &fakeLLM{}, Options{})
	a := d.Run(context.Background(), "S5660_P801?")
	b := d.Run(context.Background(), "S5660_P801?")
	if a.RequestID == b.RequestID {
		t.Error("two runs share a request id")
	}
}

func TestDirectRunRetrievalDegrades(t *testing.T) {
	retriever := &fakeRetriever{
		retrieveFunc: func(ctx context.Context, q string, k int) ([]string, error) {
			return nil, errors.New("index unavailable")
		},
	}
	model := &fakeLLM{}
	d := NewDirect(&fakeStore{}, retriever, model, Options{})

	resp := d.Run(context.Background(), "Why did S5660_P801 drop?")

	if resp.Source != SourceWarehouse || resp.Data == nil {
		t.Fatal("retrieval failure did not degrade gracefully")
	}
	if !strings.Contains(model.lastPrompt, "No specific rules retrieved") {
		t.Error("empty retrieval did not render the placeholder context")
	}
}

func TestDirectRunProviderChangesDegrade(t *testing.T) {
	store := &fakeStore{
		providerChangesFunc: func(ctx context.Context, orgCode string) ([]metrics.ProviderChange, error) {
			return nil, errors.New("table locked")
		},
	}
	model := &fakeLLM{}
	d := NewDirect(store, &fakeRetriever{}, model, Options{})

	resp := d.Run(context.Background(), "Why did S5660_P801 drop?")

	if resp.Data == nil || resp.Signals == nil {
		t.Fatal("provider change failure became fatal")
	}
	if resp.Signals.ChangeCount != 0 {
		t.Errorf("change count = %d, want 0", resp.Signals.ChangeCount)
	}
	if !strings.Contains(model.lastPrompt, "0 change(s) detected") {
		t.Error("prompt does not reflect the empty change list")
	}
}

func TestDirectRunGenerationFallsBack(t *testing.T) {
	model := &fakeLLM{
		completeFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "", errors.New("429 rate limited")
		},
	}
	d := NewDirect(&fakeStore{}, &fakeRetriever{}, model, Options{})

	userQuery := "Why did S5660_P801 drop?"
	resp := d.Run(context.Background(), userQuery)

	m := metrics.FromRow("S5660_P801", membershipRow())
	s := signal.Compute(m, nil, signal.DefaultThresholds())
	if want := prompt.BuildFallbackText(m, s, userQuery); resp.Text != want {
		t.Errorf("fallback text mismatch:\ngot  %q\nwant %q", resp.Text, want)
	}
	if resp.Source != SourceWarehouse {
		t.Errorf("source = %q, want %q", resp.Source, SourceWarehouse)
	}
	if resp.Data == nil || resp.Signals == nil {
		t.Error("fallback response dropped data or signals")
	}
}

func TestDirectRunTopKOption(t *testing.T) {
	retriever := &fakeRetriever{}
	d := NewDirect(&fakeStore{}, retriever, &fakeLLM{}, Options{TopK: 2})
	d.Run(context.Background(), "S5660_P801?")
	if retriever.lastK != 2 {
		t.Errorf("retrieval k = %d, want 2", retriever.lastK)
	}
}

func TestAgentRunSuccessAndContinuity(t *testing.T) {
	model := &fakeLLM{
		completeFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "Session answer.", nil
		},
	}
	a := NewAgent(&fakeStore{}, &fakeRetriever{}, model, Options{})

	if a.SessionID() == "" {
		t.Fatal("agent has no session id")
	}

	first := a.Run(context.Background(), "Why did S5660_P801 drop?")
	if first.Source != SourceAgent {
		t.Errorf("source = %q, want %q", first.Source, SourceAgent)
	}
	if first.Text != "Session answer." {
		t.Errorf("text = %q", first.Text)
	}
	if strings.Contains(model.lastPrompt, "Conversation so far:") {
		t.Error("first turn rendered a conversation prefix")
	}

	a.Run(context.Background(), "And what about the retro terminations in S5660_P801?")
	for _, want := range []string{
		"Conversation so far:",
		"User: Why did S5660_P801 drop?",
		"Analyst: Session answer.",
		"Current request:",
	} {
		if !strings.Contains(model.lastPrompt, want) {
			t.Errorf("second turn prompt missing %q", want)
		}
	}
}

func TestAgentFallsBackOnError(t *testing.T) {
	model := &fakeLLM{
		completeFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "", errors.New("session backend down")
		},
	}
	a := NewAgent(&fakeStore{}, &fakeRetriever{}, model, Options{})

	resp := a.Run(context.Background(), "Why did S5660_P801 drop?")

	// The direct rerun hits the same failing client, so the final text
	// is the deterministic fallback.
	if resp.Source != SourceWarehouse {
		t.Errorf("source = %q, want %q", resp.Source, SourceWarehouse)
	}
	if model.calls != 2 {
		t.Errorf("llm calls = %d, want 2 (session attempt plus direct rerun)", model.calls)
	}
	if !strings.HasPrefix(resp.Text, "Analysis for S5660_P801:") {
		t.Errorf("fallback text not rendered: %q", resp.Text)
	}
	if len(a.turns) != 0 {
		t.Error("failed turn was recorded in the session")
	}
}

func TestAgentFallsBackOnEmptyOutput(t *testing.T) {
	calls := 0
	model := &fakeLLM{
		completeFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			calls++
			if calls == 1 {
				return "   ", nil
			}
			return "Direct answer.", nil
		},
	}
	a := NewAgent(&fakeStore{}, &fakeRetriever{}, model, Options{})

	resp := a.Run(context.Background(), "Why did S5660_P801 drop?")

	if resp.Text != "Direct answer." {
		t.Errorf("text = %q, want the direct rerun output", resp.Text)
	}
	if resp.Source != SourceWarehouse {
		t.Errorf("source = %q, want %q", resp.Source, SourceWarehouse)
	}
}

func TestAgentFatalSkipsSession(t *testing.T) {
	model := &fakeLLM{}
	a := NewAgent(&fakeStore{}, &fakeRetriever{}, model, Options{})

	resp := a.Run(context.Background(), "no code in this question")

	if resp.Text != MsgNoOrgCode {
		t.Errorf("text = %q, want %q", resp.Text, MsgNoOrgCode)
	}
	if model.calls != 0 {
		t.Error("fatal path reached generation")
	}
	if len(a.turns) != 0 {
		t.Error("fatal path recorded a session turn")
	}
}

func TestAgentSessionTurnCap(t *testing.T) {
	model := &fakeLLM{
		completeFunc: func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
			return "Answer.", nil
		},
	}
	a := NewAgent(&fakeStore{}, &fakeRetriever{}, model, Options{})

	total := maxSessionTurns + 2
	for i := 0; i < total; i++ {
		a.Run(context.Background(), fmt.Sprintf("question %d about S5660_P801", i))
	}

	if len(a.turns) != maxSessionTurns {
		t.Fatalf("turns = %d, want %d", len(a.turns), maxSessionTurns)
	}
	if want := fmt.Sprintf("question %d about S5660_P801", total-maxSessionTurns); a.turns[0].question != want {
		t.Errorf("oldest retained turn = %q, want %q", a.turns[0].question, want)
	}
}

func TestNewVariantFactory(t *testing.T) {
	store := &fakeStore{}
	retriever := &fakeRetriever{}
	model := &fakeLLM{}

	for _, variant := range []string{"", "direct"} {
		got, err := New(variant, store, retriever, model, Options{})
		if err != nil {
			t.Fatalf("New(%q) error: %v", variant, err)
		}
		if _, ok := got.(*Direct); !ok {
			t.Errorf("New(%q) = %T, want *Direct", variant, got)
		}
	}

	got, err := New("agent", store, retriever, model, Options{})
	if err != nil {
		t.Fatalf("New(agent) error: %v", err)
	}
	if _, ok := got.(*Agent); !ok {
		t.Errorf("New(agent) = %T, want *Agent", got)
	}

	if _, err := New("bogus", store, retriever, model, Options{}); err == nil {
		t.Error("unknown variant accepted")
	}
}
