package model

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

type ConversationRepository interface {
	// AppendMessages appends a batch of messages to the session's transcript.
	// The append is all-or-nothing: either every message of a dispatch cycle
	// lands in the transcript or none does.
	AppendMessages(ctx context.Context, sessionID string, messages []*schema.Message) error

	// LoadHistory retrieves the transcript for a session.
	LoadHistory(ctx context.Context, sessionID string) (*ConversationHistory, error)

	// ClearHistory removes all transcript entries for a session.
	ClearHistory(ctx context.Context, sessionID string) error

	// MessageCount returns the number of messages in the session's transcript.
	MessageCount(ctx context.Context, sessionID string) (int, error)
}

// ConversationHistory represents loaded transcript data with metadata.
type ConversationHistory struct {
	SessionID string
	Messages  []*schema.Message
}
