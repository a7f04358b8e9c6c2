package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkwng/poegate/domain"
)

// RedisStore implements Store using Redis. Conversations and runs live in
// JSON string keys, messages in a per-conversation list.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID
}

func messagesKey(conversationID string) string {
	return "conversation:" + conversationID + ":messages"
}

func runKey(runID string) string {
	return "run:" + runID
}

// Close closes the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetConversation retrieves a conversation by ID.
func (s *RedisStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	raw, err := s.client.Get(ctx, conversationKey(conversationID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var conv domain.Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetOrCreateConversation gets an existing conversation or creates a new one.
func (s *RedisStore) GetOrCreateConversation(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	conv = &domain.Conversation{
		ConversationID: conversationID,
		UserID:         userID,
		CreatedAt:      time.Now(),
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return nil, err
	}
	// SetNX keeps the first writer's record under concurrent creation.
	set, err := s.client.SetNX(ctx, conversationKey(conversationID), raw, 0).Result()
	if err != nil {
		return nil, err
	}
	if !set {
		return s.GetConversation(ctx, conversationID)
	}
	return conv, nil
}

// CreateMessage stores a new message.
func (s *RedisStore) CreateMessage(ctx context.Context, message *domain.Message) error {
	raw, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, messagesKey(message.ConversationID), raw).Err()
}

// GetMessages returns the most recent messages of a conversation in
// chronological order.
func (s *RedisStore) GetMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	raws, err := s.client.LRange(ctx, messagesKey(conversationID), int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	for _, raw := range raws {
		var msg domain.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// CreateRun stores a new run.
func (s *RedisStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return s.writeRun(ctx, run)
}

// GetRun retrieves a run by ID.
func (s *RedisStore) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	raw, err := s.client.Get(ctx, runKey(runID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var run domain.Run
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// UpdateRunStatus updates the status of a run.
func (s *RedisStore) UpdateRunStatus(ctx context.Context, runID string, status domain.RunStatus) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Status = status
	return s.writeRun(ctx, run)
}

// UpdateRunCompleted marks a run as finished with a terminal status.
func (s *RedisStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errMsg string) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", runID)
	}
	now := time.Now()
	run.Status = status
	run.EndedAt = &now
	run.Error = errMsg
	return s.writeRun(ctx, run)
}

func (s *RedisStore) writeRun(ctx context.Context, run *domain.Run) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, runKey(run.RunID), raw, 0).Err()
}
