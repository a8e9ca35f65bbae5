// Package fillerindex is the pgvector-backed semantic index over filler-clip
// transcripts. When the hedge engine's exact metadata filter (language +
// principle + profile) matches no clip, the index finds the clip whose
// spoken content is closest to the caller's most recent utterance, so a
// thematically related filler plays instead of synthetic silence.
//
// Embeddings are computed through an embeddings.Provider: clip transcripts
// are indexed up front (IndexClips), the live query path embeds one
// utterance per lookup (Nearest).
package fillerindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/voicecore/callcore/internal/embeddings"
)

// queryTimeout bounds a single Nearest lookup; the filler path runs during
// the LLM latency gap, so a slow index must never outlast the gap it fills.
const queryTimeout = 2 * time.Second

// Index is the pgvector-backed clip index. All methods are safe for
// concurrent use.
type Index struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
	logger   *slog.Logger
}

// New connects to the database at dsn, registers pgvector types on every
// connection, and ensures the filler_embeddings table exists with the
// embedder's dimensionality.
func New(ctx context.Context, dsn string, embedder embeddings.Provider, logger *slog.Logger) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("fillerindex: embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("fillerindex: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fillerindex: create pool: %w", err)
	}

	if err := migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("fillerindex: migrate: %w", err)
	}

	return &Index{pool: pool, embedder: embedder, logger: logger}, nil
}

// Close releases the connection pool.
func (ix *Index) Close() {
	ix.pool.Close()
}

func migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	ddl := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS filler_embeddings (
			clip_id    TEXT PRIMARY KEY,
			transcript TEXT NOT NULL DEFAULT '',
			embedding  vector(%d) NOT NULL
		);

		CREATE INDEX IF NOT EXISTS filler_embeddings_hnsw
		    ON filler_embeddings USING hnsw (embedding vector_cosine_ops);`, dims)

	_, err := pool.Exec(ctx, ddl)
	return err
}

// ClipTranscript pairs a clip ID with the transcript text to embed.
type ClipTranscript struct {
	ClipID     string
	Transcript string
}

// IndexClips embeds every transcript in one batch and upserts the vectors.
// Intended for startup or offline catalog refresh, not the live call path.
func (ix *Index) IndexClips(ctx context.Context, clips []ClipTranscript) error {
	if len(clips) == 0 {
		return nil
	}

	texts := make([]string, len(clips))
	for i, c := range clips {
		texts[i] = c.Transcript
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("fillerindex: embed transcripts: %w", err)
	}

	const q = `
		INSERT INTO filler_embeddings (clip_id, transcript, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (clip_id) DO UPDATE SET
		    transcript = EXCLUDED.transcript,
		    embedding  = EXCLUDED.embedding`

	for i, c := range clips {
		if _, err := ix.pool.Exec(ctx, q, c.ClipID, c.Transcript, pgvector.NewVector(vectors[i])); err != nil {
			return fmt.Errorf("fillerindex: upsert clip %q: %w", c.ClipID, err)
		}
	}
	return nil
}

// Nearest embeds text and returns up to topK clip IDs ordered by ascending
// cosine distance (most similar first). Implements
// intelligence.SemanticFallback.
func (ix *Index) Nearest(ctx context.Context, text string, topK int) ([]string, error) {
	if text == "" || topK <= 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vec, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("fillerindex: embed query: %w", err)
	}

	rows, err := ix.pool.Query(ctx, `
		SELECT clip_id
		FROM   filler_embeddings
		ORDER  BY embedding <=> $1
		LIMIT  $2`, pgvector.NewVector(vec), topK)
	if err != nil {
		return nil, fmt.Errorf("fillerindex: nearest query: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("fillerindex: collect rows: %w", err)
	}
	return ids, nil
}
