// Package profile resolves business profiles by called phone number.
// Each deployed number belongs to one client; unknown numbers fall back
// to a default profile so a misrouted call still gets answered.
package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Profile holds the per-client configuration a call session is seeded with.
type Profile struct {
	ClientID           string          `json:"client_id"`
	BusinessName       string          `json:"business_name"`
	AssistantName      string          `json:"ai_assistant_name"`
	Industry           string          `json:"industry"`
	City               string          `json:"city"`
	PhoneNumber        string          `json:"phone_number"`
	BusinessHours      string          `json:"business_hours"`
	EmergencyAvailable bool            `json:"emergency_available"`
	ServiceArea        string          `json:"service_area"`
	Currency           string          `json:"currency"`
	Timezone           string          `json:"timezone"`
	VoiceID            string          `json:"voice_id"`
	Persona            string          `json:"persona"`
	FlagTemplate       map[string]bool `json:"session_flags_template"`
}

// Store looks up profiles by called number.
type Store interface {
	// Lookup returns the profile for number. The boolean is false when the
	// number is not configured and the default profile was returned instead.
	Lookup(number string) (*Profile, bool)
}

// Default returns the fallback profile used for unconfigured numbers.
func Default() *Profile {
	return &Profile{
		ClientID:           "default",
		BusinessName:       "Pete's Plumbing",
		AssistantName:      "Pete",
		Industry:           "plumbing_services",
		City:               "Melbourne",
		BusinessHours:      "Mon-Fri 8AM-6PM, Sat 8AM-4PM",
		EmergencyAvailable: true,
		ServiceArea:        "Melbourne Metro",
		Currency:           "AUD",
		Timezone:           "Australia/Melbourne",
		FlagTemplate: map[string]bool{
			"intro_played":              false,
			"services_explained":        false,
			"pricing_discussed":         false,
			"booking_requested":         false,
			"urgent_call":               false,
			"contact_details_collected": false,
			"appointment_scheduled":     false,
			"emergency_handled":         false,
		},
	}
}

// FileStore is a Store backed by a JSON file mapping phone number → Profile.
type FileStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	fallback *Profile
}

// LoadFile reads a profile table from path.
func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile table: %w", err)
	}
	var profiles map[string]*Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parsing profile table: %w", err)
	}
	return &FileStore{profiles: profiles, fallback: Default()}, nil
}

// NewStore builds a Store from an in-memory table. A nil table is valid;
// every lookup then returns the default profile.
func NewStore(profiles map[string]*Profile) *FileStore {
	if profiles == nil {
		profiles = make(map[string]*Profile)
	}
	return &FileStore{profiles: profiles, fallback: Default()}
}

// Lookup implements Store.
func (s *FileStore) Lookup(number string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[number]; ok && number != "" {
		return p, true
	}
	return s.fallback, false
}
