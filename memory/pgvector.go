// Package memory provides pgvector-backed conversation memory.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Embedder turns text into vectors.
type Embedder interface {
	CreateEmbedding(ctx context.Context, model string, input []string) ([][]float32, error)
}

// Memory stores and recalls conversation snippets.
type Memory interface {
	Remember(ctx context.Context, conversationID, content string) error
	Recall(ctx context.Context, conversationID, query string, k int) ([]string, error)
	Close()
}

// PgVector implements Memory on a pgvector-enabled Postgres database.
type PgVector struct {
	pool     *pgxpool.Pool
	embedder Embedder
	model    string
}

// New connects to the database, ensures the schema exists and returns the
// memory store.
func New(ctx context.Context, dsn string, embedder Embedder, model string) (*PgVector, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	m := &PgVector{pool: pool, embedder: embedder, model: model}
	if err := m.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate memory schema: %w", err)
	}
	return m, nil
}

func (m *PgVector) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS memories (
			memory_id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(1536) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memories_conversation ON memories(conversation_id)`,
	}
	for _, stmt := range statements {
		if _, err := m.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

// Close releases the connection pool.
func (m *PgVector) Close() {
	m.pool.Close()
}

// Remember embeds the content and stores it for the conversation.
func (m *PgVector) Remember(ctx context.Context, conversationID, content string) error {
	vectors, err := m.embedder.CreateEmbedding(ctx, m.model, []string{content})
	if err != nil {
		return fmt.Errorf("failed to embed memory: %w", err)
	}
	if len(vectors) != 1 {
		return fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	_, err = m.pool.Exec(ctx,
		`INSERT INTO memories (memory_id, conversation_id, content, embedding, created_at)
		 VALUES ($1, $2, $3, $4::vector, $5)`,
		"mem_"+uuid.New().String(), conversationID, content, vectorLiteral(vectors[0]), time.Now())
	if err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// Recall returns up to k stored snippets closest to the query, most similar
// first.
func (m *PgVector) Recall(ctx context.Context, conversationID, query string, k int) ([]string, error) {
	vectors, err := m.embedder.CreateEmbedding(ctx, m.model, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}

	rows, err := m.pool.Query(ctx,
		`SELECT content FROM memories
		 WHERE conversation_id = $1
		 ORDER BY embedding <-> $2::vector
		 LIMIT $3`,
		conversationID, vectorLiteral(vectors[0]), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var snippets []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		snippets = append(snippets, content)
	}
	return snippets, rows.Err()
}

// vectorLiteral renders a vector in pgvector's input format.
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
