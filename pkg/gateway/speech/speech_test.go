package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fragment struct {
	text  string
	final bool
}

func TestDeepgramRecognizerDeliversFragments(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan []byte, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token dg-key" {
			t.Errorf("Authorization = %q", got)
		}
		q := r.URL.Query()
		if q.Get("encoding") != "mulaw" || q.Get("sample_rate") != "8000" {
			t.Errorf("unexpected audio params: %v", q)
		}
		if q.Get("model") != "nova-2" {
			t.Errorf("model = %q", q.Get("model"))
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		gotAudio <- payload

		interim := `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hello"}]}}`
		final := `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello there"}]}}`
		ws.WriteMessage(websocket.TextMessage, []byte(interim))
		ws.WriteMessage(websocket.TextMessage, []byte(final))

		// Hold the socket open until the client closes it.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	config := DefaultDeepgramConfig("dg-key")
	config.BaseURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	rec := NewDeepgramRecognizer(config)

	var mu sync.Mutex
	var fragments []fragment
	err := rec.Start(t.Context(), func(text string, final bool, at time.Time) {
		mu.Lock()
		fragments = append(fragments, fragment{text, final})
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer rec.Close()

	if err := rec.Feed([]byte{0xFF, 0x7F, 0x00}); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	select {
	case payload := <-gotAudio:
		if len(payload) != 3 {
			t.Errorf("server received %d bytes, want 3", len(payload))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received audio")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(fragments)
		mu.Unlock()
		if n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d fragments, want 2", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if fragments[0].text != "hello" || fragments[0].final {
		t.Errorf("fragment[0] = %+v, want interim hello", fragments[0])
	}
	if fragments[1].text != "hello there" || !fragments[1].final {
		t.Errorf("fragment[1] = %+v, want final hello there", fragments[1])
	}
}

func TestDeepgramRecognizerRequiresAPIKey(t *testing.T) {
	rec := NewDeepgramRecognizer(DeepgramConfig{})
	err := rec.Start(t.Context(), func(string, bool, time.Time) {})
	if err == nil {
		t.Fatal("Start succeeded without api key")
	}
}

func TestDeepgramFeedAfterCloseIsDropped(t *testing.T) {
	rec := NewDeepgramRecognizer(DefaultDeepgramConfig("dg-key"))
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rec.Feed([]byte{0x00}); err != nil {
		t.Fatalf("Feed after close: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestElevenSynthesize(t *testing.T) {
	audio := []byte{0xFF, 0x00, 0x7F, 0x80}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("xi-api-key"); got != "el-key" {
			t.Errorf("xi-api-key = %q", got)
		}
		wantPath := "/v1/text-to-speech/voice-1/stream"
		if r.URL.Path != wantPath {
			t.Errorf("path = %q, want %q", r.URL.Path, wantPath)
		}
		if got := r.URL.Query().Get("output_format"); got != "ulaw_8000" {
			t.Errorf("output_format = %q", got)
		}
		var req elevenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Text != "Good morning" {
			t.Errorf("text = %q", req.Text)
		}
		if req.ModelID != elevenModelID {
			t.Errorf("model_id = %q", req.ModelID)
		}
		w.Write(audio)
	}))
	defer srv.Close()

	config := DefaultElevenConfig("el-key")
	config.BaseURL = srv.URL
	synth := NewElevenSynthesizer(config, srv.Client())

	got, err := synth.Synthesize(context.Background(), "Good morning", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(got) != string(audio) {
		t.Errorf("audio = %v, want %v", got, audio)
	}
}

func TestElevenSynthesizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	config := DefaultElevenConfig("el-key")
	config.BaseURL = srv.URL
	synth := NewElevenSynthesizer(config, srv.Client())

	_, err := synth.Synthesize(context.Background(), "hello", "voice-1")
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not mention status", err)
	}
}

func TestElevenSynthesizeRequiresVoice(t *testing.T) {
	synth := NewElevenSynthesizer(DefaultElevenConfig("el-key"), nil)
	if _, err := synth.Synthesize(context.Background(), "hello", ""); err == nil {
		t.Fatal("expected error without voice id")
	}
}
