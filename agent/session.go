package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkwng/poegate/domain"
	"github.com/mkwng/poegate/llm"
)

// Manager hands out one session per conversation so concurrent requests for
// different conversations never share mutable agent state.
type Manager struct {
	mu       sync.Mutex
	agent    *Agent
	sessions map[string]*Session
}

// NewManager creates a session manager backed by the given agent.
func NewManager(a *Agent) *Manager {
	return &Manager{
		agent:    a,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for the conversation, creating it on first use.
func (m *Manager) Session(conversationID, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[conversationID]
	if !ok {
		s = &Session{
			agent:          m.agent,
			conversationID: conversationID,
			userID:         userID,
		}
		m.sessions[conversationID] = s
	}
	return s
}

// Session serializes generation runs for one conversation.
type Session struct {
	mu             sync.Mutex
	agent          *Agent
	conversationID string
	userID         string
}

// Run executes one generation for the given user input. The user message,
// the run record and the assistant reply are persisted; fragments stream
// through emit as they arrive. Runs within a session are serialized.
func (s *Session) Run(ctx context.Context, input string, emit func(string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emit == nil {
		emit = func(string) {}
	}

	a := s.agent
	if _, err := a.store.GetOrCreateConversation(ctx, s.conversationID, s.userID); err != nil {
		return "", fmt.Errorf("failed to ensure conversation: %w", err)
	}

	run := &domain.Run{
		RunID:          "run_" + uuid.New().String(),
		ConversationID: s.conversationID,
		Status:         domain.RunStatusCreated,
		StartedAt:      time.Now(),
	}
	if err := a.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	if err := a.store.CreateMessage(ctx, &domain.Message{
		MessageID:      "msg_" + uuid.New().String(),
		ConversationID: s.conversationID,
		RunID:          run.RunID,
		Role:           "user",
		Content:        input,
		CreatedAt:      time.Now(),
	}); err != nil {
		return "", fmt.Errorf("failed to store user message: %w", err)
	}

	if err := a.store.UpdateRunStatus(ctx, run.RunID, domain.RunStatusRunning); err != nil {
		return "", fmt.Errorf("failed to mark run running: %w", err)
	}

	messages, err := s.buildMessages(ctx, input)
	if err != nil {
		s.finishRun(run.RunID, domain.RunStatusFailed, err.Error())
		return "", err
	}

	text, err := a.generate(ctx, s.conversationID, messages, emit)
	if err != nil {
		status := domain.RunStatusFailed
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			status = domain.RunStatusCancelled
		}
		s.finishRun(run.RunID, status, err.Error())
		return "", err
	}

	if err := a.store.CreateMessage(ctx, &domain.Message{
		MessageID:      "msg_" + uuid.New().String(),
		ConversationID: s.conversationID,
		RunID:          run.RunID,
		Role:           "assistant",
		Content:        text,
		CreatedAt:      time.Now(),
	}); err != nil {
		s.finishRun(run.RunID, domain.RunStatusFailed, err.Error())
		return "", fmt.Errorf("failed to store assistant message: %w", err)
	}

	if a.memory != nil {
		exchange := fmt.Sprintf("user: %s\nassistant: %s", input, text)
		if err := a.memory.Remember(ctx, s.conversationID, exchange); err != nil {
			a.log.Warn().Err(err).Str("conversation_id", s.conversationID).Msg("failed to store memory")
		}
	}

	s.finishRun(run.RunID, domain.RunStatusDone, "")
	return text, nil
}

// buildMessages assembles the prompt: system instructions, recalled memory
// and the stored history. The latest user message is already persisted, so
// it arrives through the history query.
func (s *Session) buildMessages(ctx context.Context, input string) ([]llm.ChatMessage, error) {
	a := s.agent
	messages := []llm.ChatMessage{{Role: "system", Content: systemPrompt}}

	if a.memory != nil {
		snippets, err := a.memory.Recall(ctx, s.conversationID, input, a.memoryTopK)
		if err != nil {
			a.log.Warn().Err(err).Str("conversation_id", s.conversationID).Msg("memory recall failed")
		} else if len(snippets) > 0 {
			messages = append(messages, llm.ChatMessage{
				Role:    "system",
				Content: "Relevant notes from earlier in this conversation:\n" + strings.Join(snippets, "\n---\n"),
			})
		}
	}

	history, err := a.store.GetMessages(ctx, s.conversationID, a.historyDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	for _, m := range history {
		role := m.Role
		if role != "user" && role != "assistant" && role != "system" {
			continue
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: m.Content})
	}
	return messages, nil
}

// finishRun records the terminal state of a run. The request context may
// already be cancelled, so completion is written with its own context.
func (s *Session) finishRun(runID string, status domain.RunStatus, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.agent.store.UpdateRunCompleted(ctx, runID, status, errMsg); err != nil {
		s.agent.log.Error().Err(err).Str("run_id", runID).Msg("failed to record run completion")
	}
}
