package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TurnDetector polls a session at a fixed interval and fires callbacks
// when the caller's utterance completes or the call times out. One
// detector runs per call, cancelled at call end.
type TurnDetector struct {
	session *CallSession
	config  Config

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	onUtterance func(transcript string)
	onTimeout   func()
	onDebug     func(category, message string)
}

// NewTurnDetector creates a detector for the given session.
func NewTurnDetector(s *CallSession, cfg Config) *TurnDetector {
	return &TurnDetector{session: s, config: cfg}
}

// SetCallbacks sets the event callbacks for the detector.
func (d *TurnDetector) SetCallbacks(
	onUtterance func(transcript string),
	onTimeout func(),
	onDebug func(category, message string),
) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onUtterance = onUtterance
	d.onTimeout = onTimeout
	d.onDebug = onDebug
}

// Start begins the polling goroutine. Must be called before fragments are
// expected to complete.
func (d *TurnDetector) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.mu.Unlock()

	go d.pollLoop()
}

// Stop halts the polling goroutine.
func (d *TurnDetector) Stop() {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()
}

// AddFragment forwards a recognition fragment to the session. Only final
// fragments accumulate; interim results just prove the caller is talking.
func (d *TurnDetector) AddFragment(text string, final bool, at time.Time) {
	if !final {
		return
	}
	d.session.AddFinalFragment(text, at)
}

func (d *TurnDetector) pollLoop() {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.check(time.Now())
		}
	}
}

func (d *TurnDetector) check(now time.Time) {
	// Snapshot under the same lock SetCallbacks writes under, so a
	// caller may rewire callbacks while the poll loop is running.
	d.mu.Lock()
	onUtterance, onTimeout := d.onUtterance, d.onTimeout
	d.mu.Unlock()

	if transcript, ok := d.session.CheckCompletion(now); ok {
		d.debug("TURN", fmt.Sprintf("utterance complete: %q", transcript))
		if onUtterance != nil {
			onUtterance(transcript)
		}
		return
	}
	if d.session.CheckTimeout(now) {
		d.debug("TURN", "inactivity timeout reached")
		if onTimeout != nil {
			onTimeout()
		}
	}
}

func (d *TurnDetector) debug(category, message string) {
	d.mu.Lock()
	onDebug := d.onDebug
	d.mu.Unlock()
	if onDebug != nil {
		onDebug(category, message)
	}
}
