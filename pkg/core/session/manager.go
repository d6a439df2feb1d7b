package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/web3mammon/sonic-prism-core/pkg/core/profile"
)

// ErrSessionExists is returned when creating a session for a call id that
// already has one.
var ErrSessionExists = errors.New("session already exists")

// Manager is the registry of active call sessions, the only structure
// shared across calls. Sessions themselves are independent.
type Manager struct {
	profiles profile.Store
	config   Config
	onDebug  func(category, message string)

	mu       sync.RWMutex
	sessions map[string]*CallSession
}

// NewManager creates a session registry backed by the given profile store.
func NewManager(profiles profile.Store, cfg Config) *Manager {
	return &Manager{
		profiles: profiles,
		config:   cfg,
		sessions: make(map[string]*CallSession),
	}
}

// SetDebug installs an optional diagnostics callback.
func (m *Manager) SetDebug(onDebug func(category, message string)) {
	m.onDebug = onDebug
}

// Create builds a session for a new call, seeded from the profile looked
// up by the called number with a default fallback.
func (m *Manager) Create(callID, from, to string, dir Direction) (*CallSession, error) {
	p, configured := m.profiles.Lookup(to)
	ref := ProfileRef{
		ClientID:      p.ClientID,
		BusinessName:  p.BusinessName,
		AssistantName: p.AssistantName,
		Persona:       p.Persona,
		VoiceID:       p.VoiceID,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[callID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, callID)
	}
	s := NewCallSession(callID, from, to, dir, ref, p.FlagTemplate, m.config)
	m.sessions[callID] = s

	if !configured {
		m.debug("SESSION", fmt.Sprintf("no profile for %s, using default (%s)", to, p.ClientID))
	}
	m.debug("SESSION", fmt.Sprintf("created %s for %s (%s)", callID, p.BusinessName, dir))
	return s, nil
}

// Get returns the session for callID, or nil if none exists.
func (m *Manager) Get(callID string) *CallSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[callID]
}

// Remove tears down the session for callID. Safe to call twice.
func (m *Manager) Remove(callID string) {
	m.mu.Lock()
	s := m.sessions[callID]
	delete(m.sessions, callID)
	m.mu.Unlock()

	if s != nil {
		m.debug("SESSION", fmt.Sprintf("removed %s (%s)", callID, s.ClientID))
	}
}

// ActiveCount reports the number of live sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) debug(category, message string) {
	if m.onDebug != nil {
		m.onDebug(category, message)
	}
}
