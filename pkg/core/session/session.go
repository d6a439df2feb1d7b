// Package session tracks per-call state: transcript accumulation, silence
// thresholds, timeouts, session variables and conversation history. One
// CallSession exists per active call, owned by its Manager; only the owning
// call's goroutines mutate it, through the mutex-guarded methods here.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Direction of a call relative to the business.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

// String returns a human-readable call direction.
func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// UtteranceKind classifies the assistant's most recent utterance, which
// drives the silence threshold policy.
type UtteranceKind int

const (
	// UtteranceNone means the assistant has not spoken yet.
	UtteranceNone UtteranceKind = iota
	// UtteranceStatement is a declarative assistant response.
	UtteranceStatement
	// UtteranceQuestion extends the caller's silence threshold while recent.
	UtteranceQuestion
)

// HistoryEntry is one conversation turn kept for generation context.
type HistoryEntry struct {
	Time    time.Time
	Speaker string
	Message string
}

// CallSession is the per-call state store.
type CallSession struct {
	CallID    string
	From      string
	To        string
	Direction Direction
	ClientID  string
	Profile   ProfileRef
	CreatedAt time.Time
	config    Config

	mu sync.Mutex

	// Turn accumulation
	accumulated     string
	lastActivity    time.Time
	silenceActive   time.Duration
	lastUtterance   UtteranceKind
	questionAskedAt time.Time
	dispatched      bool
	aiSpeaking      bool

	// Timeout tracking
	lastUserActivity time.Time
	paymentLinkSent  bool
	paymentLinkAt    time.Time

	// Conversation memory
	history   []HistoryEntry
	variables map[string]string
	flags     map[string]bool

	// Call metadata
	interruptions int
	audioFiles    int
	ttsResponses  int
}

// ProfileRef is the subset of the client profile a session carries around.
type ProfileRef struct {
	ClientID      string
	BusinessName  string
	AssistantName string
	Persona       string
	VoiceID       string
}

// NewCallSession creates a session seeded from the given profile.
func NewCallSession(callID, from, to string, dir Direction, ref ProfileRef, flagTemplate map[string]bool, cfg Config) *CallSession {
	flags := make(map[string]bool, len(flagTemplate))
	for k, v := range flagTemplate {
		flags[k] = v
	}
	now := time.Now()
	return &CallSession{
		CallID:           callID,
		From:             from,
		To:               to,
		Direction:        dir,
		ClientID:         ref.ClientID,
		Profile:          ref,
		CreatedAt:        now,
		config:           cfg,
		silenceActive:    cfg.SilenceThresholdBase,
		lastUserActivity: now,
		variables:        make(map[string]string),
		flags:            flags,
	}
}

// AddFinalFragment appends a finalized transcript fragment to the
// accumulation buffer. Fragments arriving while a prior utterance is still
// dispatched are discarded, not queued: the caller's words during
// processing belong to the next turn only once processing ends.
func (s *CallSession) AddFinalFragment(text string, at time.Time) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastUserActivity = at
	if s.dispatched {
		return
	}
	if s.accumulated == "" {
		s.accumulated = text
	} else {
		s.accumulated += " " + text
	}
	s.lastActivity = at

	// Re-derive the active threshold on every fragment so an aging
	// question falls back to the base threshold mid-accumulation.
	if s.lastUtterance == UtteranceQuestion && !s.questionAskedAt.IsZero() &&
		at.Sub(s.questionAskedAt) < s.config.QuestionRecencyWindow {
		s.silenceActive = s.config.SilenceThresholdAfterQuestion
	} else {
		s.silenceActive = s.config.SilenceThresholdBase
	}
}

// CheckCompletion reports whether the accumulated transcript forms a
// completed utterance as of now. On completion it snapshots and returns
// the transcript, clears the buffer, and marks the session dispatched so
// at most one utterance is in flight.
func (s *CallSession) CheckCompletion(now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accumulated == "" || s.lastActivity.IsZero() || s.dispatched {
		return "", false
	}
	if now.Sub(s.lastActivity) < s.silenceActive {
		return "", false
	}
	if len(strings.Fields(s.accumulated)) < s.config.MinWords {
		return "", false
	}

	transcript := s.accumulated
	s.accumulated = ""
	s.lastActivity = time.Time{}
	s.dispatched = true
	return transcript, true
}

// ActiveThreshold returns the silence threshold currently in effect.
func (s *CallSession) ActiveThreshold() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silenceActive
}

// ResetForNextInput clears dispatch state after a response finishes, so
// the next caller turn can accumulate.
func (s *CallSession) ResetForNextInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatched = false
	s.accumulated = ""
	s.lastActivity = time.Time{}
}

// Dispatched reports whether a transcript is currently being processed.
func (s *CallSession) Dispatched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched
}

// StartAISpeech marks the assistant as speaking.
func (s *CallSession) StartAISpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiSpeaking = true
}

// EndAISpeech marks the assistant as done speaking.
func (s *CallSession) EndAISpeech() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiSpeaking = false
}

// AISpeaking reports whether assistant audio is currently streaming.
func (s *CallSession) AISpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aiSpeaking
}

// MarkAIQuestion records that the assistant just asked a question,
// extending the caller's silence threshold while the question is recent.
func (s *CallSession) MarkAIQuestion(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUtterance = UtteranceQuestion
	s.questionAskedAt = at
}

// MarkAIStatement records a declarative assistant response.
func (s *CallSession) MarkAIStatement() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUtterance = UtteranceStatement
	s.questionAskedAt = time.Time{}
}

// CheckTimeout reports whether the call has been inactive past the active
// timeout. Sending a payment link switches to the longer payment timeout.
func (s *CallSession) CheckTimeout(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timeout := s.config.CallTimeout
	if s.paymentLinkSent {
		timeout = s.config.PaymentTimeout
	}
	return now.Sub(s.lastUserActivity) > timeout
}

// MarkPaymentLinkSent extends the inactivity timeout so the caller can
// complete payment without the call dropping.
func (s *CallSession) MarkPaymentLinkSent(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentLinkSent = true
	s.paymentLinkAt = at
}

// ClearPaymentLink reverts to the standard call timeout.
func (s *CallSession) ClearPaymentLink() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paymentLinkSent = false
	s.paymentLinkAt = time.Time{}
}

// PaymentLinkSent reports whether the extended timeout is active.
func (s *CallSession) PaymentLinkSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentLinkSent
}

// AppendHistory records one conversation turn.
func (s *CallSession) AppendHistory(speaker, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEntry{Time: time.Now(), Speaker: speaker, Message: message})
}

// History returns a copy of the conversation so far.
func (s *CallSession) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// SetVariable stores a session variable extracted from the conversation
// (customer name, address, job type and so on).
func (s *CallSession) SetVariable(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[name] = value
}

// Variable returns a session variable and whether it was set.
func (s *CallSession) Variable(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variables[name]
	return v, ok
}

// SetFlag updates a session feature flag.
func (s *CallSession) SetFlag(name string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = value
}

// Flag returns a session feature flag.
func (s *CallSession) Flag(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name]
}

// Flags returns a copy of the flag map for logging.
func (s *CallSession) Flags() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out
}

// Context renders session variables and active flags for the generation
// prompt, "key: value" pairs joined with " | ".
func (s *CallSession) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var parts []string
	for name, value := range s.variables {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", name, value))
		}
	}
	var active []string
	for flag, set := range s.flags {
		if set {
			active = append(active, flag)
		}
	}
	if len(active) > 0 {
		parts = append(parts, "Discussed topics: "+strings.Join(active, ", "))
	}
	if len(parts) == 0 {
		return "No context yet"
	}
	return strings.Join(parts, " | ")
}

// CountInterruption increments the barge-in counter.
func (s *CallSession) CountInterruption() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interruptions++
}

// CountAudioFile increments the cached-snippet usage counter.
func (s *CallSession) CountAudioFile() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioFiles++
}

// CountTTSResponse increments the synthesized-response counter.
func (s *CallSession) CountTTSResponse() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttsResponses++
}

// Stats returns call counters for the teardown summary log.
func (s *CallSession) Stats() (interruptions, audioFiles, ttsResponses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interruptions, s.audioFiles, s.ttsResponses
}
