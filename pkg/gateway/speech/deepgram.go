// Package speech provides the hosted speech collaborators: a Deepgram
// live-transcription recognizer and an ElevenLabs synthesizer. Both
// speak the call engine's wire codec (G.711 mu-law at 8 kHz) so their
// output feeds the pacer and recorder without transcoding.
package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/web3mammon/sonic-prism-core/pkg/core/call"
)

const (
	deepgramWriteWait     = 10 * time.Second
	deepgramKeepAliveTick = 5 * time.Second
)

// DeepgramConfig configures one live transcription session.
type DeepgramConfig struct {
	APIKey      string
	Model       string
	Language    string
	Endpointing time.Duration
	BaseURL     string
}

// DefaultDeepgramConfig returns settings tuned for telephony audio.
func DefaultDeepgramConfig(apiKey string) DeepgramConfig {
	return DeepgramConfig{
		APIKey:      apiKey,
		Model:       "nova-2",
		Language:    "en-AU",
		Endpointing: 600 * time.Millisecond,
		BaseURL:     "wss://api.deepgram.com",
	}
}

// DeepgramRecognizer streams mu-law audio to Deepgram's live websocket
// API and emits transcript fragments. One recognizer serves one call.
type DeepgramRecognizer struct {
	config DeepgramConfig

	mu        sync.Mutex
	ws        *websocket.Conn
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewDeepgramRecognizer builds an unstarted recognizer.
func NewDeepgramRecognizer(config DeepgramConfig) *DeepgramRecognizer {
	return &DeepgramRecognizer{
		config: config,
		done:   make(chan struct{}),
	}
}

// deepgramResult is the subset of the live API response we consume.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Start dials the live endpoint and begins delivering fragments to
// onFragment until Close or a read failure.
func (r *DeepgramRecognizer) Start(ctx context.Context, onFragment call.FragmentFunc) error {
	if r.config.APIKey == "" {
		return fmt.Errorf("deepgram: api key not set")
	}

	q := url.Values{}
	q.Set("model", r.config.Model)
	q.Set("language", r.config.Language)
	q.Set("encoding", "mulaw")
	q.Set("sample_rate", "8000")
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("endpointing", strconv.Itoa(int(r.config.Endpointing.Milliseconds())))

	endpoint := r.config.BaseURL + "/v1/listen?" + q.Encode()
	header := http.Header{"Authorization": []string{"Token " + r.config.APIKey}}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("deepgram: dial: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		ws.Close()
		return fmt.Errorf("deepgram: recognizer closed")
	}
	r.ws = ws
	r.mu.Unlock()

	go r.readLoop(onFragment)
	go r.keepAliveLoop()
	return nil
}

func (r *DeepgramRecognizer) readLoop(onFragment call.FragmentFunc) {
	for {
		_, raw, err := r.ws.ReadMessage()
		if err != nil {
			r.closeOnce.Do(func() { close(r.done) })
			return
		}
		var result deepgramResult
		if err := json.Unmarshal(raw, &result); err != nil {
			continue
		}
		if result.Type != "Results" || len(result.Channel.Alternatives) == 0 {
			continue
		}
		text := result.Channel.Alternatives[0].Transcript
		if text == "" {
			continue
		}
		onFragment(text, result.IsFinal, time.Now())
	}
}

// keepAliveLoop keeps the upstream session open across silent stretches.
func (r *DeepgramRecognizer) keepAliveLoop() {
	ticker := time.NewTicker(deepgramKeepAliveTick)
	defer ticker.Stop()
	msg := []byte(`{"type":"KeepAlive"}`)
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if err := r.writeMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// Feed forwards one mu-law payload to the live session. Payloads sent
// before Start or after Close are dropped.
func (r *DeepgramRecognizer) Feed(payload []byte) error {
	return r.writeMessage(websocket.BinaryMessage, payload)
}

func (r *DeepgramRecognizer) writeMessage(messageType int, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ws == nil {
		return nil
	}
	r.ws.SetWriteDeadline(time.Now().Add(deepgramWriteWait))
	return r.ws.WriteMessage(messageType, data)
}

// Close ends the session. Safe to call more than once.
func (r *DeepgramRecognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ws := r.ws
	r.mu.Unlock()

	r.closeOnce.Do(func() { close(r.done) })
	if ws == nil {
		return nil
	}
	ws.SetWriteDeadline(time.Now().Add(deepgramWriteWait))
	ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	return ws.Close()
}
