package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaEngineEmbed(t *testing.T) {
	var gotPath string
	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	engine, err := NewOllamaEngine(srv.URL, "embeddinggemma")
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}

	vec, err := engine.Embed(context.Background(), "retro terminations")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("Embed returned %v, want [0.1 0.2 0.3]", vec)
	}
	if gotPath != "/api/embeddings" {
		t.Errorf("request path=%q, want /api/embeddings", gotPath)
	}
	if gotReq.Model != "embeddinggemma" || gotReq.Prompt != "retro terminations" {
		t.Errorf("request body=%+v", gotReq)
	}
}

func TestOllamaEngineEmbedServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	engine, _ := NewOllamaEngine(srv.URL, "missing-model")
	if _, err := engine.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestOllamaEngineEmbedBatch(t *testing.T) {
	var prompts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaEmbedRequest
		json.NewDecoder(r.Body).Decode(&req)
		prompts = append(prompts, req.Prompt)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{float32(len(prompts))}})
	}))
	defer srv.Close()

	engine, _ := NewOllamaEngine(srv.URL, "")
	vecs, err := engine.EmbedBatch(context.Background(), []string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("EmbedBatch returned %d vectors, want 3", len(vecs))
	}
	// Sequential calls preserve input order.
	if prompts[0] != "first" || prompts[1] != "second" || prompts[2] != "third" {
		t.Errorf("prompts sent out of order: %v", prompts)
	}
	if vecs[2][0] != 3 {
		t.Errorf("vectors not aligned with inputs: %v", vecs)
	}
}

func TestOllamaEngineDefaults(t *testing.T) {
	engine, err := NewOllamaEngine("", "")
	if err != nil {
		t.Fatalf("NewOllamaEngine: %v", err)
	}
	if engine.endpoint != "http://localhost:11434" {
		t.Errorf("default endpoint=%q", engine.endpoint)
	}
	if got := engine.Name(); got != "ollama:embeddinggemma" {
		t.Errorf("default Name()=%q", got)
	}
}
