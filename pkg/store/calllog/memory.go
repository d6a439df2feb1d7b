package calllog

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-memory Logger for tests and database-free deployments.
type Memory struct {
	mu            sync.Mutex
	calls         []CallRecord
	conversations []ConversationRecord
	usage         []UsageRecord
}

// NewMemory creates an empty in-memory log store.
func NewMemory() *Memory {
	return &Memory{}
}

// LogCall implements Logger.
func (m *Memory) LogCall(ctx context.Context, rec CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, rec)
	return nil
}

// LogConversation implements Logger.
func (m *Memory) LogConversation(ctx context.Context, rec ConversationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append(m.conversations, rec)
	return nil
}

// LogUsage implements Logger.
func (m *Memory) LogUsage(ctx context.Context, rec UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, rec)
	return nil
}

// Calls returns a copy of the call rows.
func (m *Memory) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}

// Conversations returns a copy of the conversation rows.
func (m *Memory) Conversations() []ConversationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ConversationRecord, len(m.conversations))
	copy(out, m.conversations)
	return out
}

// Usage returns a copy of the usage rows.
func (m *Memory) Usage() []UsageRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UsageRecord, len(m.usage))
	copy(out, m.usage)
	return out
}
