package rulebook

import (
	"context"
	"fmt"

	"memberlens/internal/embedding"
)

// MockEngine implements embedding.Engine for testing.
type MockEngine struct {
	EmbedFunc         func(ctx context.Context, text string) ([]float32, error)
	EmbedBatchFunc    func(ctx context.Context, texts []string) ([][]float32, error)
	DimensionsFunc    func() int
	NameFunc          func() string
	EmbedWithTaskFunc func(ctx context.Context, text, taskType string) ([]float32, error)
}

func (m *MockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedFunc != nil {
		return m.EmbedFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

func (m *MockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.EmbedBatchFunc != nil {
		return m.EmbedBatchFunc(ctx, texts)
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return result, nil
}

func (m *MockEngine) Dimensions() int {
	if m.DimensionsFunc != nil {
		return m.DimensionsFunc()
	}
	return 4
}

func (m *MockEngine) Name() string {
	if m.NameFunc != nil {
		return m.NameFunc()
	}
	return "mock-embedding-engine"
}

func (m *MockEngine) EmbedWithTask(ctx context.Context, text, taskType string) ([]float32, error) {
	if m.EmbedWithTaskFunc != nil {
		return m.EmbedWithTaskFunc(ctx, text, taskType)
	}
	return m.Embed(ctx, text)
}

var (
	_ embedding.Engine     = (*MockEngine)(nil)
	_ embedding.TaskEngine = (*MockEngine)(nil)
)

// basicEngine hides the task method so tests can exercise the plain
// query path.
type basicEngine struct {
	inner *MockEngine
}

func (b basicEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return b.inner.Embed(ctx, text)
}

func (b basicEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return b.inner.EmbedBatch(ctx, texts)
}

func (b basicEngine) Dimensions() int { return b.inner.Dimensions() }
func (b basicEngine) Name() string    { return b.inner.Name() }

// errorEngine always fails.
type errorEngine struct{}

func (errorEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("mock error")
}

func (errorEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, fmt.Errorf("mock error")
}

func (errorEngine) Dimensions() int { return 4 }
func (errorEngine) Name() string    { return "mock-error-engine" }
