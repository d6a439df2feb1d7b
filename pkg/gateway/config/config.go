package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the gateway configuration, loaded from the environment.
type Config struct {
	Addr string

	// Snippet library
	AudioDir     string
	ManifestPath string
	GreetingKey  string

	// Client profiles; empty means every call uses the default profile.
	ProfilesPath string

	// Recordings
	RecordingsDir    string
	RecordingWorkers int

	// Structured log store; empty means in-memory only.
	DatabaseURL string

	// Collaborators
	GeminiAPIKey     string
	GeminiModel      string
	DeepgramAPIKey   string
	DeepgramModel    string
	ElevenAPIKey     string
	ElevenBaseURL    string
	TwilioAccountSID string
	TwilioAuthToken  string

	// Turn detection and timeouts
	SilenceThresholdBase          time.Duration
	SilenceThresholdAfterQuestion time.Duration
	QuestionRecencyWindow         time.Duration
	TurnPollInterval              time.Duration
	MinWords                      int
	CallTimeout                   time.Duration
	PaymentTimeout                time.Duration

	// Outbound pacing
	ChunkSize  int
	FrameDelay time.Duration

	// Operational defaults
	MetricsNamespace    string
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// LoadFromEnv builds a Config from SONIC_PRISM_* environment variables
// and validates it.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                          envOr("SONIC_PRISM_ADDR", ":8080"),
		AudioDir:                      envOr("SONIC_PRISM_AUDIO_DIR", "audio_ulaw"),
		ManifestPath:                  envOr("SONIC_PRISM_MANIFEST", "audio_snippets.json"),
		GreetingKey:                   envOr("SONIC_PRISM_GREETING_KEY", ""),
		ProfilesPath:                  envOr("SONIC_PRISM_PROFILES", ""),
		RecordingsDir:                 envOr("SONIC_PRISM_RECORDINGS_DIR", "call_recordings"),
		RecordingWorkers:              envIntOr("SONIC_PRISM_RECORDING_WORKERS", 2),
		DatabaseURL:                   envOr("SONIC_PRISM_DATABASE_URL", ""),
		GeminiAPIKey:                  envOr("SONIC_PRISM_GEMINI_API_KEY", ""),
		GeminiModel:                   envOr("SONIC_PRISM_GEMINI_MODEL", "gemini-2.0-flash"),
		DeepgramAPIKey:                envOr("SONIC_PRISM_DEEPGRAM_API_KEY", ""),
		DeepgramModel:                 envOr("SONIC_PRISM_DEEPGRAM_MODEL", "nova-2"),
		ElevenAPIKey:                  envOr("SONIC_PRISM_ELEVENLABS_API_KEY", ""),
		ElevenBaseURL:                 envOr("SONIC_PRISM_ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),
		TwilioAccountSID:              envOr("SONIC_PRISM_TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:               envOr("SONIC_PRISM_TWILIO_AUTH_TOKEN", ""),
		SilenceThresholdBase:          envDurationOr("SONIC_PRISM_SILENCE_THRESHOLD_BASE", 1500*time.Millisecond),
		SilenceThresholdAfterQuestion: envDurationOr("SONIC_PRISM_SILENCE_THRESHOLD_QUESTION", 3*time.Second),
		QuestionRecencyWindow:         envDurationOr("SONIC_PRISM_QUESTION_RECENCY_WINDOW", 10*time.Second),
		TurnPollInterval:              envDurationOr("SONIC_PRISM_TURN_POLL_INTERVAL", 50*time.Millisecond),
		MinWords:                      envIntOr("SONIC_PRISM_MIN_WORDS", 2),
		CallTimeout:                   envDurationOr("SONIC_PRISM_CALL_TIMEOUT", 300*time.Second),
		PaymentTimeout:                envDurationOr("SONIC_PRISM_PAYMENT_TIMEOUT", 600*time.Second),
		ChunkSize:                     envIntOr("SONIC_PRISM_CHUNK_SIZE", 8000),
		FrameDelay:                    envDurationOr("SONIC_PRISM_FRAME_DELAY", 20*time.Millisecond),
		MetricsNamespace:              envOr("SONIC_PRISM_METRICS_NAMESPACE", "sonicprism"),
		ReadHeaderTimeout:             envDurationOr("SONIC_PRISM_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:           envDurationOr("SONIC_PRISM_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	if strings.TrimSpace(cfg.Addr) == "" {
		return Config{}, fmt.Errorf("SONIC_PRISM_ADDR must not be empty")
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return Config{}, fmt.Errorf("SONIC_PRISM_AUDIO_DIR must not be empty")
	}
	if strings.TrimSpace(cfg.ManifestPath) == "" {
		return Config{}, fmt.Errorf("SONIC_PRISM_MANIFEST must not be empty")
	}
	if strings.TrimSpace(cfg.RecordingsDir) == "" {
		return Config{}, fmt.Errorf("SONIC_PRISM_RECORDINGS_DIR must not be empty")
	}
	if cfg.RecordingWorkers <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_RECORDING_WORKERS must be > 0")
	}
	if cfg.SilenceThresholdBase <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_SILENCE_THRESHOLD_BASE must be > 0")
	}
	if cfg.SilenceThresholdAfterQuestion < cfg.SilenceThresholdBase {
		return Config{}, fmt.Errorf("SONIC_PRISM_SILENCE_THRESHOLD_QUESTION must be >= SONIC_PRISM_SILENCE_THRESHOLD_BASE")
	}
	if cfg.QuestionRecencyWindow <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_QUESTION_RECENCY_WINDOW must be > 0")
	}
	if cfg.TurnPollInterval <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_TURN_POLL_INTERVAL must be > 0")
	}
	if cfg.MinWords <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_MIN_WORDS must be > 0")
	}
	if cfg.CallTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_CALL_TIMEOUT must be > 0")
	}
	if cfg.PaymentTimeout < cfg.CallTimeout {
		return Config{}, fmt.Errorf("SONIC_PRISM_PAYMENT_TIMEOUT must be >= SONIC_PRISM_CALL_TIMEOUT")
	}
	if cfg.ChunkSize <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_CHUNK_SIZE must be > 0")
	}
	if cfg.FrameDelay < 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_FRAME_DELAY must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("SONIC_PRISM_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		return Config{}, fmt.Errorf("SONIC_PRISM_GEMINI_MODEL must not be empty")
	}
	if (cfg.TwilioAccountSID == "") != (cfg.TwilioAuthToken == "") {
		return Config{}, fmt.Errorf("SONIC_PRISM_TWILIO_ACCOUNT_SID and SONIC_PRISM_TWILIO_AUTH_TOKEN must be set together")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
