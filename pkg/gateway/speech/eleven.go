package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	elevenModelID     = "eleven_flash_v2_5"
	elevenOutputCodec = "ulaw_8000"
)

// ElevenConfig configures the ElevenLabs synthesizer.
type ElevenConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DefaultElevenConfig returns settings for the hosted API.
func DefaultElevenConfig(apiKey string) ElevenConfig {
	return ElevenConfig{
		APIKey:  apiKey,
		BaseURL: "https://api.elevenlabs.io",
		Timeout: 15 * time.Second,
	}
}

// ElevenSynthesizer renders text to mu-law audio through the
// ElevenLabs text-to-speech API.
type ElevenSynthesizer struct {
	config ElevenConfig
	client *http.Client
}

// NewElevenSynthesizer builds a synthesizer. Pass nil to use a client
// with the configured timeout.
func NewElevenSynthesizer(config ElevenConfig, client *http.Client) *ElevenSynthesizer {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	return &ElevenSynthesizer{config: config, client: client}
}

type elevenRequest struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	VoiceSettings elevenVoiceSettings `json:"voice_settings"`
}

type elevenVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// Synthesize renders text in the given voice and returns mu-law bytes
// ready for the pacer.
func (s *ElevenSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if s.config.APIKey == "" {
		return nil, fmt.Errorf("elevenlabs: api key not set")
	}
	if voiceID == "" {
		return nil, fmt.Errorf("elevenlabs: voice id not set")
	}

	body, err := json.Marshal(elevenRequest{
		Text:    text,
		ModelID: elevenModelID,
		VoiceSettings: elevenVoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.8,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s/stream?output_format=%s",
		s.config.BaseURL, voiceID, elevenOutputCodec)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", s.config.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, detail)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("elevenlabs: empty audio response")
	}
	return audio, nil
}
