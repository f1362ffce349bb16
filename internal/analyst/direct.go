package analyst

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberlens/internal/llm"
	"memberlens/internal/logging"
	"memberlens/internal/metrics"
	"memberlens/internal/prompt"
	"memberlens/internal/query"
	"memberlens/internal/signal"
	"memberlens/internal/warehouse"
)

// Options tunes analyst construction. The zero value is usable:
// default thresholds, default top-k, no-op logger.
type Options struct {
	// Thresholds overrides the signal cutoffs when non-nil.
	Thresholds *signal.Thresholds

	// TopK is the rulebook chunk count per query; <= 0 means
	// DefaultTopK.
	TopK int

	Logger *zap.Logger
}

// Direct is the plain single-shot pipeline: extract, look up, compute
// signals, retrieve rulebook context, assemble the prompt, generate.
type Direct struct {
	store      warehouse.Store
	retriever  Retriever
	llm        llm.Client
	thresholds signal.Thresholds
	topK       int
	log        *zap.Logger
}

// NewDirect creates the direct analyst.
func NewDirect(store warehouse.Store, retriever Retriever, client llm.Client, opts Options) *Direct {
	th := signal.DefaultThresholds()
	if opts.Thresholds != nil {
		th = *opts.Thresholds
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Direct{
		store:      store,
		retriever:  retriever,
		llm:        client,
		thresholds: th,
		topK:       topK,
		log:        logging.Named(opts.Logger, "analyst"),
	}
}

// prepared carries the request-scoped pipeline state between prepare
// and generation.
type prepared struct {
	orgCode string
	metrics metrics.Membership
	signals signal.Set
	prompt  string
}

// prepare runs every step up to generation. A non-nil Response means
// the request hit a fatal path and must be returned as-is.
func (d *Direct) prepare(ctx context.Context, userQuery string) (*prepared, *Response) {
	orgCode, ok := ExtractOrgCode(userQuery)
	if !ok {
		return nil, &Response{Text: MsgNoOrgCode, RequestID: uuid.NewString()}
	}

	row, err := d.store.Membership(ctx, orgCode)
	if err != nil {
		d.log.Warn("membership lookup failed",
			zap.String("org_cd", orgCode),
			zap.Error(err))
		row = nil
	}
	if row == nil {
		return nil, &Response{
			Text:      fmt.Sprintf(msgNoDataFmt, orgCode),
			OrgCode:   orgCode,
			RequestID: uuid.NewString(),
		}
	}

	changes, err := d.store.ProviderChanges(ctx, orgCode)
	if err != nil {
		d.log.Warn("provider change lookup failed",
			zap.String("org_cd", orgCode),
			zap.Error(err))
		changes = nil
	}

	m := metrics.FromRow(orgCode, row)
	s := signal.Compute(m, changes, d.thresholds)

	chunks, err := d.retriever.Retrieve(ctx, query.Expand(s), d.topK)
	if err != nil {
		d.log.Warn("rulebook retrieval failed",
			zap.String("org_cd", orgCode),
			zap.Error(err))
		chunks = nil
	}

	return &prepared{
		orgCode: orgCode,
		metrics: m,
		signals: s,
		prompt:  prompt.BuildAnalysisPrompt(m, s, strings.Join(chunks, ChunkSeparator), len(changes), userQuery),
	}, nil
}

// Run executes the pipeline for one user query. Generation failures
// substitute the deterministic fallback text; the response always
// carries the computed metrics and signals once the warehouse row is
// found.
func (d *Direct) Run(ctx context.Context, userQuery string) *Response {
	prep, fatal := d.prepare(ctx, userQuery)
	if fatal != nil {
		return fatal
	}

	text, err := d.llm.CompleteWithSystem(ctx, prompt.SystemPrompt, prep.prompt)
	if err != nil {
		d.log.Warn("generation failed, using fallback text",
			zap.String("org_cd", prep.orgCode),
			zap.Error(err))
		text = prompt.BuildFallbackText(prep.metrics, prep.signals, userQuery)
	}

	return &Response{
		Text:      text,
		Data:      &prep.metrics,
		Signals:   &prep.signals,
		OrgCode:   prep.orgCode,
		Source:    SourceWarehouse,
		RequestID: uuid.NewString(),
	}
}
