// Package calllog persists the append-only call, conversation and usage
// logs: one row per event, written at turn boundaries and call teardown.
package calllog

import (
	"context"
	"time"
)

// CallRecord is the summary row written once per completed call.
type CallRecord struct {
	ID             string
	CallID         string
	PhoneNumber    string
	Direction      string
	Duration       time.Duration
	AudioFilesUsed int
	TTSResponses   int
	SessionFlags   map[string]bool
	FinalStatus    string
	At             time.Time
}

// ConversationRecord is one conversation turn.
type ConversationRecord struct {
	ID           string
	CallID       string
	Speaker      string
	MessageType  string
	Content      string
	AudioFile    string
	ResponseTime time.Duration
	At           time.Time
}

// UsageRecord is one billing-relevant row per completed call.
type UsageRecord struct {
	ID            string
	ClientID      string
	CallID        string
	ToNumber      string
	FromNumber    string
	Direction     string
	Duration      time.Duration
	BilledMinutes int
	At            time.Time
}

// BilledMinutes rounds a call duration up to whole minutes.
func BilledMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	mins := int(d / time.Minute)
	if d%time.Minute > 0 {
		mins++
	}
	return mins
}

// Logger is the append-only log sink consumed by the call orchestrator.
// Implementations must never block the live call path for long; failures
// are logged by the caller and dropped.
type Logger interface {
	LogCall(ctx context.Context, rec CallRecord) error
	LogConversation(ctx context.Context, rec ConversationRecord) error
	LogUsage(ctx context.Context, rec UsageRecord) error
}
