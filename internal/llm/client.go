// Package llm provides the chat completion client that renders the
// final analysis text.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Client generates chat completions.
type Client interface {
	// Complete sends a bare prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// CompleteWithSystem sends a prompt with a system message.
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	// Name returns the client name.
	Name() string
}

// Config holds completion client configuration.
type Config struct {
	// Provider: "gemini" (the default)
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// NewClient creates a completion client based on configuration.
func NewClient(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use 'gemini')", cfg.Provider)
	}
}
