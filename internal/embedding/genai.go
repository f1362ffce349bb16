package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenAIEngine generates embeddings using Google's Gemini API.
type GenAIEngine struct {
	client *genai.Client
	model  string
	task   string
}

// NewGenAIEngine creates a new GenAI embedding engine. taskType sets
// the default task applied by Embed and EmbedBatch; an empty value
// means document retrieval.
func NewGenAIEngine(apiKey, model, taskType string) (*GenAIEngine, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIEngine{
		client: client,
		model:  model,
		task:   parseTask(taskType),
	}, nil
}

// parseTask maps a config task name to the GenAI task type. Unknown
// names fall back to document retrieval.
func parseTask(taskType string) string {
	switch taskType {
	case "RETRIEVAL_DOCUMENT", "":
		return "RETRIEVAL_DOCUMENT"
	case "RETRIEVAL_QUERY":
		return "RETRIEVAL_QUERY"
	case "SEMANTIC_SIMILARITY":
		return "SEMANTIC_SIMILARITY"
	case "QUESTION_ANSWERING":
		return "QUESTION_ANSWERING"
	default:
		return "RETRIEVAL_DOCUMENT"
	}
}

// Embed generates an embedding for a single text using the engine's
// default task type.
func (e *GenAIEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, e.task)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedWithTask generates an embedding with an explicit task type,
// overriding the engine default. Queries embed as RETRIEVAL_QUERY
// while the indexed documents stay RETRIEVAL_DOCUMENT.
func (e *GenAIEngine) EmbedWithTask(ctx context.Context, text, taskType string) ([]float32, error) {
	vecs, err := e.embed(ctx, []string{text}, parseTask(taskType))
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. GenAI has native
// batch support.
func (e *GenAIEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	return e.embed(ctx, texts, e.task)
}

func (e *GenAIEngine) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: task,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) < len(texts) {
		return nil, fmt.Errorf("GenAI returned %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = result.Embeddings[i].Values
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of embeddings.
// gemini-embedding-001 produces 768-dimensional vectors.
func (e *GenAIEngine) Dimensions() int {
	return 768
}

// Name returns the engine name.
func (e *GenAIEngine) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}

// Close releases the engine. The GenAI client holds no resources that
// require explicit cleanup.
func (e *GenAIEngine) Close() error {
	return nil
}
