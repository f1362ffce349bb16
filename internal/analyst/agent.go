package analyst

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memberlens/internal/llm"
	"memberlens/internal/logging"
	"memberlens/internal/prompt"
	"memberlens/internal/warehouse"
)

// maxSessionTurns bounds the conversation history rendered into the
// session prompt. Older turns drop off the front.
const maxSessionTurns = 6

// Agent is the conversational variant. It runs the identical pipeline
// as Direct but keeps a per-process session: prior turns are rendered
// ahead of the current analysis prompt so follow-up questions carry
// context. Any generation failure or empty output falls back to a
// full Direct run for the same query.
type Agent struct {
	direct    *Direct
	llm       llm.Client
	log       *zap.Logger
	sessionID string

	mu    sync.Mutex
	turns []turn
}

type turn struct {
	question string
	answer   string
}

// NewAgent creates the session analyst. The session id is fixed for
// the process lifetime.
func NewAgent(store warehouse.Store, retriever Retriever, client llm.Client, opts Options) *Agent {
	return &Agent{
		direct:    NewDirect(store, retriever, client, opts),
		llm:       client,
		log:       logging.Named(opts.Logger, "agent"),
		sessionID: uuid.NewString(),
	}
}

// SessionID returns the process-lifetime session identifier.
func (a *Agent) SessionID() string {
	return a.sessionID
}

// Run answers one query within the session. Fatal paths short-circuit
// before any session state is touched, and fallback runs do not record
// a turn.
func (a *Agent) Run(ctx context.Context, userQuery string) *Response {
	prep, fatal := a.direct.prepare(ctx, userQuery)
	if fatal != nil {
		return fatal
	}

	text, err := a.llm.CompleteWithSystem(ctx, prompt.SystemPrompt, a.sessionPrompt(prep.prompt))
	if err != nil || strings.TrimSpace(text) == "" {
		a.log.Warn("session generation failed, falling back to direct run",
			zap.String("org_cd", prep.orgCode),
			zap.String("session_id", a.sessionID),
			zap.Error(err))
		return a.direct.Run(ctx, userQuery)
	}

	a.record(userQuery, text)
	return &Response{
		Text:      text,
		Data:      &prep.metrics,
		Signals:   &prep.signals,
		OrgCode:   prep.orgCode,
		Source:    SourceAgent,
		RequestID: uuid.NewString(),
	}
}

// sessionPrompt prefixes the analysis prompt with the recorded
// conversation. The first turn of a session sends the prompt
// unmodified.
func (a *Agent) sessionPrompt(analysisPrompt string) string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.turns) == 0 {
		return analysisPrompt
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, t := range a.turns {
		fmt.Fprintf(&b, "User: %s\nAnalyst: %s\n", t.question, t.answer)
	}
	b.WriteString("\nCurrent request:\n")
	b.WriteString(analysisPrompt)
	return b.String()
}

func (a *Agent) record(question, answer string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.turns = append(a.turns, turn{question: question, answer: answer})
	if len(a.turns) > maxSessionTurns {
		a.turns = a.turns[len(a.turns)-maxSessionTurns:]
	}
}
