package call

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3mammon/sonic-prism-core/pkg/core/cache"
	"github.com/web3mammon/sonic-prism-core/pkg/core/pace"
	"github.com/web3mammon/sonic-prism-core/pkg/core/profile"
	"github.com/web3mammon/sonic-prism-core/pkg/core/respond"
	"github.com/web3mammon/sonic-prism-core/pkg/core/session"
	"github.com/web3mammon/sonic-prism-core/pkg/store/calllog"
)

type fakeTransport struct {
	mu      sync.Mutex
	chunks  [][]byte
	clears  int
	stops   int
	sendErr error
}

func (f *fakeTransport) SendMedia(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.chunks = append(f.chunks, append([]byte(nil), payload...))
	return nil
}

func (f *fakeTransport) SendClear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return nil
}

func (f *fakeTransport) SendStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) sentBytes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, c := range f.chunks {
		total += len(c)
	}
	return total
}

func (f *fakeTransport) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func (f *fakeTransport) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

type fakeRecognizer struct {
	mu         sync.Mutex
	onFragment FragmentFunc
	fed        int
	closed     bool
}

func (f *fakeRecognizer) Start(ctx context.Context, onFragment FragmentFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFragment = onFragment
	return nil
}

func (f *fakeRecognizer) Feed(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed += len(payload)
	return nil
}

func (f *fakeRecognizer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRecognizer) emit(text string, final bool) {
	f.mu.Lock()
	cb := f.onFragment
	f.mu.Unlock()
	if cb != nil {
		cb(text, final, time.Now())
	}
}

type fakeSynthesizer struct {
	mu    sync.Mutex
	audio []byte
	err   error
	texts []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeSynthesizer) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type fakeTerminator struct {
	mu         sync.Mutex
	terminated []string
}

func (f *fakeTerminator) TerminateCall(ctx context.Context, callID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, callID)
	return nil
}

type scriptedGenerator struct {
	raw string
	err error
}

func (g *scriptedGenerator) Generate(ctx context.Context, req respond.GenerateRequest) (string, error) {
	return g.raw, g.err
}

type fixture struct {
	orch       *Orchestrator
	transport  *fakeTransport
	recognizer *fakeRecognizer
	synth      *fakeSynthesizer
	term       *fakeTerminator
	logs       *calllog.Memory
}

func newFixture(t *testing.T, gen respond.Generator) *fixture {
	t.Helper()

	dir := t.TempDir()
	manifest := `{
  "services": {"blocked_drain.mp3": "We can help with that blocked drain."},
  "greetings": {"greeting.mp3": "Thanks for calling, how can I help?"},
  "quick_responses": {}
}`
	payload := strings.Repeat("x", 25)
	for _, name := range []string{"blocked_drain.ulaw", "greeting.ulaw"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(payload), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	manifestPath := filepath.Join(dir, "audio_snippets.json")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	c := cache.New(dir)
	if err := c.Load(manifestPath); err != nil {
		t.Fatal(err)
	}

	cfg := session.DefaultConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.SilenceThresholdBase = 20 * time.Millisecond
	cfg.SilenceThresholdAfterQuestion = 40 * time.Millisecond

	store := profile.NewStore(map[string]*profile.Profile{
		"+61400000001": {
			ClientID:      "jameson",
			BusinessName:  "Jameson Plumbing",
			AssistantName: "Pete",
			FlagTemplate:  map[string]bool{"urgent_call": false, "booking_requested": false},
		},
	})

	f := &fixture{
		transport:  &fakeTransport{},
		recognizer: &fakeRecognizer{},
		synth:      &fakeSynthesizer{audio: []byte(strings.Repeat("s", 15))},
		term:       &fakeTerminator{},
		logs:       calllog.NewMemory(),
	}
	f.orch = New(Deps{
		Sessions:      session.NewManager(store, cfg),
		Cache:         c,
		Resolver:      respond.NewResolver(c, gen),
		Transport:     f.transport,
		Recognizer:    f.recognizer,
		Synthesizer:   f.synth,
		Terminator:    f.term,
		Logs:          f.logs,
		SessionConfig: cfg,
		PacerConfig:   pace.Config{ChunkSize: 10, FrameDelay: 0},
	}, Hooks{})
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.orch.Start(t.Context(), "CA1", "+15550001111", "+61400000001", session.Inbound); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCallFlowAudioResponse(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "INTENT:Service Request\nblocked_drain.mp3"})
	f.start(t)

	if f.orch.State() != StateStreaming {
		t.Fatalf("state after start = %s", f.orch.State())
	}

	f.recognizer.emit("I have a blocked drain", true)

	// The cached snippet is 25 bytes; all of it must stream out.
	waitFor(t, "snippet to stream", func() bool { return f.transport.sentBytes() == 25 })
	waitFor(t, "return to streaming", func() bool { return f.orch.State() == StateStreaming })

	convs := f.logs.Conversations()
	if len(convs) != 2 {
		t.Fatalf("conversation rows = %d, want 2", len(convs))
	}
	if convs[0].Speaker != "User" || convs[0].Content != "I have a blocked drain" {
		t.Errorf("user row = %+v", convs[0])
	}
	if convs[1].MessageType != "audio" || convs[1].AudioFile != "blocked_drain.mp3" {
		t.Errorf("assistant row = %+v", convs[1])
	}
	if len(f.synth.requested()) != 0 {
		t.Error("synthesizer used for a cached response")
	}
}

func TestInboundMediaFeedsRecognizer(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "blocked_drain.mp3"})
	f.start(t)

	f.orch.HandleInboundMedia([]byte{1, 2, 3, 4})
	if f.recognizer.fed != 4 {
		t.Errorf("recognizer fed %d bytes", f.recognizer.fed)
	}
}

func TestGenerationFailureSpeaksApology(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{err: errors.New("model down")})
	f.start(t)

	f.recognizer.emit("tell me about your pricing", true)

	waitFor(t, "apology synthesis", func() bool { return len(f.synth.requested()) == 1 })
	if got := f.synth.requested()[0]; got != apologyText {
		t.Errorf("synthesized %q", got)
	}
	waitFor(t, "apology to stream", func() bool { return f.transport.sentBytes() == 15 })
}

func TestSynthesisFailureFallsBackOnce(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "GENERATE: We open at eight."})
	f.synth.err = errors.New("tts down")
	f.start(t)

	f.recognizer.emit("when do you open tomorrow", true)

	// Original text, then the apology, both fail; turn is abandoned.
	waitFor(t, "both synthesis attempts", func() bool { return len(f.synth.requested()) == 2 })
	waitFor(t, "return to streaming", func() bool { return f.orch.State() == StateStreaming })
	if f.transport.sentBytes() != 0 {
		t.Errorf("sent %d bytes with synthesis down", f.transport.sentBytes())
	}
}

func TestBargeInInterruptsResponse(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "GENERATE: A long answer about drains."})
	f.synth.audio = []byte(strings.Repeat("s", 200))
	f.orch.deps.PacerConfig = pace.Config{ChunkSize: 10, FrameDelay: 25 * time.Millisecond}
	f.start(t)

	f.recognizer.emit("what can you tell me about drains", true)
	waitFor(t, "streaming to begin", func() bool { return f.transport.sentBytes() >= 10 })

	f.recognizer.emit("wait actually", true)

	waitFor(t, "clear on barge-in", func() bool { return f.transport.clearCount() == 1 })
	waitFor(t, "return to streaming", func() bool { return f.orch.State() == StateStreaming })
	if sent := f.transport.sentBytes(); sent >= 200 {
		t.Errorf("sent %d bytes, expected an aborted stream", sent)
	}
}

func TestDisconnectDirective(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "INTENT:Goodbye\nGENERATE: Thanks for calling! DISCONNECT_CALL"})
	f.start(t)

	f.recognizer.emit("no that's all thanks", true)

	waitFor(t, "call termination", func() bool {
		f.term.mu.Lock()
		defer f.term.mu.Unlock()
		return len(f.term.terminated) == 1
	})
	waitFor(t, "closed state", func() bool { return f.orch.State() == StateClosed })
	if f.transport.stopCount() == 0 {
		t.Error("no stop signal sent")
	}
	if f.orch.deps.Sessions.ActiveCount() != 0 {
		t.Error("session still registered after disconnect")
	}
}

func TestStopEventWritesSummary(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "blocked_drain.mp3"})
	f.start(t)

	f.orch.HandleStop()

	if f.orch.State() != StateClosed {
		t.Fatalf("state = %s", f.orch.State())
	}
	calls := f.logs.Calls()
	if len(calls) != 1 || calls[0].FinalStatus != "completed" {
		t.Fatalf("call rows = %+v", calls)
	}
	usage := f.logs.Usage()
	if len(usage) != 1 || usage[0].ClientID != "jameson" {
		t.Fatalf("usage rows = %+v", usage)
	}
	if usage[0].BilledMinutes < 1 {
		t.Errorf("billed minutes = %d", usage[0].BilledMinutes)
	}
	if !f.recognizer.closed {
		t.Error("recognizer left open")
	}

	// A second stop is a no-op.
	f.orch.HandleStop()
	if len(f.logs.Calls()) != 1 {
		t.Error("duplicate summary rows")
	}
}

func TestTransportErrorClosesCall(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "blocked_drain.mp3"})
	f.start(t)

	f.orch.HandleTransportError(errors.New("websocket: close 1006"))

	if f.orch.State() != StateClosed {
		t.Fatalf("state = %s", f.orch.State())
	}
	calls := f.logs.Calls()
	if len(calls) != 1 || calls[0].FinalStatus != "transport_error" {
		t.Errorf("call rows = %+v", calls)
	}
}

func TestGreetingPlaysOnStart(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{raw: "blocked_drain.mp3"})
	f.orch.deps.GreetingKey = "greeting.mp3"
	f.start(t)

	waitFor(t, "greeting to stream", func() bool { return f.transport.sentBytes() == 25 })

	waitFor(t, "greeting conversation row", func() bool { return len(f.logs.Conversations()) == 1 })
	row := f.logs.Conversations()[0]
	if row.AudioFile != "greeting.mp3" {
		t.Errorf("greeting row = %+v", row)
	}
	// The greeting transcript ends in a question mark, so the caller
	// gets the extended silence threshold.
	sess := f.orch.Session()
	sess.AddFinalFragment("two words", time.Now())
	if got := sess.ActiveThreshold(); got != f.orch.deps.SessionConfig.SilenceThresholdAfterQuestion {
		t.Errorf("threshold after greeting question = %v", got)
	}
}
