// Package store defines the persistence interface and implementations.
package store

import (
	"context"
	"fmt"

	"github.com/mkwng/poegate/domain"
)

// Store defines the interface for conversation persistence.
type Store interface {
	// Conversation operations
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	GetOrCreateConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error)

	// Message operations
	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errMsg string) error

	// Lifecycle
	Close() error
}

// Open creates a store for the given backend name.
func Open(backend, sqliteDSN, redisAddr string) (Store, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteStore(sqliteDSN)
	case "redis":
		return NewRedisStore(redisAddr)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
