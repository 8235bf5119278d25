package repo

import (
	"context"
	"sync"

	"github.com/arcgis-mcp/server/internal/agent/model"
	"github.com/cloudwego/eino/schema"
)

// MemoryConversationRepository keeps transcripts in process memory. It backs
// local runs without Redis and the dispatch tests. Transcripts live for the
// process lifetime; there is no eviction.
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	sessions map[string][]*schema.Message
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{sessions: make(map[string][]*schema.Message)}
}

func (r *MemoryConversationRepository) AppendMessages(_ context.Context, sessionID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = append(r.sessions[sessionID], messages...)
	return nil
}

func (r *MemoryConversationRepository) LoadHistory(_ context.Context, sessionID string) (*model.ConversationHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.sessions[sessionID]
	msgs := make([]*schema.Message, len(stored))
	copy(msgs, stored)
	return &model.ConversationHistory{SessionID: sessionID, Messages: msgs}, nil
}

func (r *MemoryConversationRepository) ClearHistory(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
	return nil
}

func (r *MemoryConversationRepository) MessageCount(_ context.Context, sessionID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[sessionID]), nil
}

var _ model.ConversationRepository = (*MemoryConversationRepository)(nil)
