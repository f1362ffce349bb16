package rulebook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"memberlens/internal/embedding"
	"memberlens/internal/logging"
)

// Index is the persisted rulebook retrieval index. Building is lazy:
// the first retrieval loads the stored chunks, or chunks and embeds
// the source file when the store is empty. A saved index survives
// restarts, so the rulebook is only re-embedded on demand.
type Index struct {
	sourcePath string
	engine     embedding.Engine
	log        *zap.Logger
	db         *sql.DB

	mu      sync.Mutex
	ready   bool
	chunks  []string
	vectors [][]float32
}

// NewIndex opens the index database at indexPath for the rulebook at
// sourcePath, creating it if needed. The rulebook itself is not read
// until the index is first used.
func NewIndex(sourcePath, indexPath string, engine embedding.Engine, logger *zap.Logger) (*Index, error) {
	if engine == nil {
		return nil, fmt.Errorf("embedding engine is required")
	}

	dir := filepath.Dir(indexPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", indexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure index database: %w", err)
	}

	ix := &Index{
		sourcePath: sourcePath,
		engine:     engine,
		log:        logging.Named(logger, "rulebook"),
		db:         db,
	}
	if err := ix.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *Index) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rulebook_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_rulebook_position ON rulebook_chunks(position);
	`
	if _, err := ix.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Retrieve returns the k chunks most similar to the query, most
// similar first.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.ensureReady(ctx); err != nil {
		return nil, err
	}
	if len(ix.chunks) == 0 {
		return nil, nil
	}

	queryVec, err := ix.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := embedding.FindTopK(queryVec, ix.vectors, k)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = ix.chunks[r.Index]
	}
	return texts, nil
}

// Rebuild re-chunks and re-embeds the rulebook, replacing any stored
// index. Returns the number of chunks indexed.
func (ix *Index) Rebuild(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	n, err := ix.build(ctx)
	if err != nil {
		return 0, err
	}
	ix.ready = true
	return n, nil
}

// Close closes the index database.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.db.Close()
}

func (ix *Index) ensureReady(ctx context.Context) error {
	if ix.ready {
		return nil
	}
	if err := ix.load(ctx); err != nil {
		return err
	}
	if len(ix.chunks) == 0 {
		if _, err := ix.build(ctx); err != nil {
			return err
		}
	}
	ix.ready = true
	return nil
}

// load restores a previously built index from the database.
func (ix *Index) load(ctx context.Context) error {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT content, embedding FROM rulebook_chunks ORDER BY position`)
	if err != nil {
		return fmt.Errorf("failed to load index: %w", err)
	}
	defer rows.Close()

	ix.chunks = nil
	ix.vectors = nil
	for rows.Next() {
		var content, embeddingJSON string
		if err := rows.Scan(&content, &embeddingJSON); err != nil {
			return fmt.Errorf("failed to scan chunk: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			return fmt.Errorf("failed to decode embedding: %w", err)
		}
		ix.chunks = append(ix.chunks, content)
		ix.vectors = append(ix.vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(ix.chunks) > 0 {
		ix.log.Debug("loaded rulebook index",
			zap.String("source", ix.sourcePath),
			zap.Int("chunks", len(ix.chunks)))
	}
	return nil
}

// build chunks and embeds the rulebook source, then replaces the
// stored index.
func (ix *Index) build(ctx context.Context) (int, error) {
	content, err := os.ReadFile(ix.sourcePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read rulebook: %w", err)
	}

	chunks := Chunk(string(content))
	if len(chunks) == 0 {
		return 0, fmt.Errorf("rulebook %s produced no chunks", ix.sourcePath)
	}
	ix.log.Info("building rulebook index",
		zap.String("source", ix.sourcePath),
		zap.Int("chunks", len(chunks)),
		zap.String("engine", ix.engine.Name()))

	vectors := make([][]float32, 0, len(chunks))
	batchSize := 32
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch, err := ix.engine.EmbedBatch(ctx, chunks[i:end])
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks %d-%d: %w", i, end-1, err)
		}
		vectors = append(vectors, batch...)
	}

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM rulebook_chunks`); err != nil {
		return 0, fmt.Errorf("failed to clear index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO rulebook_chunks (position, content, embedding) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		embeddingJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return 0, fmt.Errorf("failed to encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, i, chunk, string(embeddingJSON)); err != nil {
			return 0, fmt.Errorf("failed to store chunk %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	ix.chunks = chunks
	ix.vectors = vectors
	return len(chunks), nil
}

// embedQuery embeds the retrieval query, asking for query-side task
// treatment when the engine supports it.
func (ix *Index) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if te, ok := ix.engine.(embedding.TaskEngine); ok {
		return te.EmbedWithTask(ctx, query, "RETRIEVAL_QUERY")
	}
	return ix.engine.Embed(ctx, query)
}
