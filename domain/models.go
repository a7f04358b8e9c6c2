package domain

import (
	"encoding/json"
	"time"
)

// ProtocolMessage is a single message in a Poe query.
type ProtocolMessage struct {
	Role        string            `json:"role"` // user, bot, system
	Content     string            `json:"content"`
	ContentType string            `json:"content_type,omitempty"`
	Timestamp   int64             `json:"timestamp,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Feedback    []MessageFeedback `json:"feedback,omitempty"`
}

// MessageFeedback is a feedback entry attached to a protocol message.
type MessageFeedback struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// Request is the envelope of every Poe server-bot request. Fields beyond
// Version/Type are populated depending on Type.
type Request struct {
	Version string      `json:"version"`
	Type    RequestType `json:"type"`

	// query
	Query          []ProtocolMessage `json:"query,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
	MessageID      string            `json:"message_id,omitempty"`

	// report_feedback / report_error
	FeedbackType string `json:"feedback_type,omitempty"`
	ErrorMessage string `json:"message,omitempty"`
}

// SettingsResponse is the bot's settings object. The bot has no special
// settings; the zero value serializes to the fixed empty configuration.
type SettingsResponse struct {
	ServerBotDependencies map[string]int `json:"server_bot_dependencies,omitempty"`
	AllowAttachments      bool           `json:"allow_attachments,omitempty"`
	IntroductionMessage   string         `json:"introduction_message,omitempty"`
}

// TextEventData is the payload of a "text" SSE event.
type TextEventData struct {
	Text string `json:"text"`
}

// ErrorEventData is the payload of an "error" SSE event.
type ErrorEventData struct {
	Text       string `json:"text"`
	AllowRetry bool   `json:"allow_retry"`
}

// Conversation represents one Poe conversation.
type Conversation struct {
	ConversationID string          `json:"conversation_id"`
	UserID         string          `json:"user_id"`
	CreatedAt      time.Time       `json:"created_at"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Message represents a single stored message in a conversation.
type Message struct {
	MessageID      string          `json:"message_id"`
	ConversationID string          `json:"conversation_id"`
	RunID          string          `json:"run_id,omitempty"`
	Role           string          `json:"role"` // user, assistant, system
	Content        string          `json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// Run represents a single generation pass of the agent for a conversation.
type Run struct {
	RunID          string     `json:"run_id"`
	ConversationID string     `json:"conversation_id"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}
