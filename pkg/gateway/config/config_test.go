package config

import (
	"strings"
	"testing"
	"time"
)

var engineEnvKeys = []string{
	"SONIC_PRISM_ADDR",
	"SONIC_PRISM_AUDIO_DIR",
	"SONIC_PRISM_MANIFEST",
	"SONIC_PRISM_GREETING_KEY",
	"SONIC_PRISM_PROFILES",
	"SONIC_PRISM_RECORDINGS_DIR",
	"SONIC_PRISM_RECORDING_WORKERS",
	"SONIC_PRISM_DATABASE_URL",
	"SONIC_PRISM_GEMINI_API_KEY",
	"SONIC_PRISM_GEMINI_MODEL",
	"SONIC_PRISM_DEEPGRAM_API_KEY",
	"SONIC_PRISM_DEEPGRAM_MODEL",
	"SONIC_PRISM_ELEVENLABS_API_KEY",
	"SONIC_PRISM_ELEVENLABS_BASE_URL",
	"SONIC_PRISM_TWILIO_ACCOUNT_SID",
	"SONIC_PRISM_TWILIO_AUTH_TOKEN",
	"SONIC_PRISM_SILENCE_THRESHOLD_BASE",
	"SONIC_PRISM_SILENCE_THRESHOLD_QUESTION",
	"SONIC_PRISM_QUESTION_RECENCY_WINDOW",
	"SONIC_PRISM_TURN_POLL_INTERVAL",
	"SONIC_PRISM_MIN_WORDS",
	"SONIC_PRISM_CALL_TIMEOUT",
	"SONIC_PRISM_PAYMENT_TIMEOUT",
	"SONIC_PRISM_CHUNK_SIZE",
	"SONIC_PRISM_FRAME_DELAY",
	"SONIC_PRISM_METRICS_NAMESPACE",
	"SONIC_PRISM_READ_HEADER_TIMEOUT",
	"SONIC_PRISM_SHUTDOWN_GRACE_PERIOD",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range engineEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.SilenceThresholdBase != 1500*time.Millisecond {
		t.Errorf("SilenceThresholdBase = %v, want 1.5s", cfg.SilenceThresholdBase)
	}
	if cfg.SilenceThresholdAfterQuestion != 3*time.Second {
		t.Errorf("SilenceThresholdAfterQuestion = %v, want 3s", cfg.SilenceThresholdAfterQuestion)
	}
	if cfg.ChunkSize != 8000 {
		t.Errorf("ChunkSize = %d, want 8000", cfg.ChunkSize)
	}
	if cfg.FrameDelay != 20*time.Millisecond {
		t.Errorf("FrameDelay = %v, want 20ms", cfg.FrameDelay)
	}
	if cfg.MinWords != 2 {
		t.Errorf("MinWords = %d, want 2", cfg.MinWords)
	}
	if cfg.CallTimeout != 300*time.Second {
		t.Errorf("CallTimeout = %v, want 300s", cfg.CallTimeout)
	}
	if cfg.PaymentTimeout != 600*time.Second {
		t.Errorf("PaymentTimeout = %v, want 600s", cfg.PaymentTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SONIC_PRISM_ADDR", ":9090")
	t.Setenv("SONIC_PRISM_SILENCE_THRESHOLD_BASE", "2s")
	t.Setenv("SONIC_PRISM_SILENCE_THRESHOLD_QUESTION", "4s")
	t.Setenv("SONIC_PRISM_CHUNK_SIZE", "4000")
	t.Setenv("SONIC_PRISM_RECORDING_WORKERS", "4")
	t.Setenv("SONIC_PRISM_GEMINI_MODEL", "gemini-2.5-flash")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.SilenceThresholdBase != 2*time.Second {
		t.Errorf("SilenceThresholdBase = %v, want 2s", cfg.SilenceThresholdBase)
	}
	if cfg.ChunkSize != 4000 {
		t.Errorf("ChunkSize = %d, want 4000", cfg.ChunkSize)
	}
	if cfg.RecordingWorkers != 4 {
		t.Errorf("RecordingWorkers = %d, want 4", cfg.RecordingWorkers)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("GeminiModel = %q, want gemini-2.5-flash", cfg.GeminiModel)
	}
}

func TestLoadFromEnvValidation(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"question below base", "SONIC_PRISM_SILENCE_THRESHOLD_QUESTION", "1s", "SILENCE_THRESHOLD_QUESTION"},
		{"zero chunk size", "SONIC_PRISM_CHUNK_SIZE", "0", "CHUNK_SIZE"},
		{"zero workers", "SONIC_PRISM_RECORDING_WORKERS", "0", "RECORDING_WORKERS"},
		{"payment below call", "SONIC_PRISM_PAYMENT_TIMEOUT", "60s", "PAYMENT_TIMEOUT"},
		{"sid without token", "SONIC_PRISM_TWILIO_ACCOUNT_SID", "AC123", "TWILIO"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestEnvHelpersFallBackOnBadInput(t *testing.T) {
	clearEnv(t)
	t.Setenv("SONIC_PRISM_MIN_WORDS", "not-a-number")
	t.Setenv("SONIC_PRISM_CALL_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.MinWords != 2 {
		t.Errorf("MinWords = %d, want fallback 2", cfg.MinWords)
	}
	if cfg.CallTimeout != 300*time.Second {
		t.Errorf("CallTimeout = %v, want fallback 300s", cfg.CallTimeout)
	}
}
