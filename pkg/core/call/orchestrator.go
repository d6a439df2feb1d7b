// Package call glues turn detection, response resolution, pacing and
// recording into the per-call state machine. One Orchestrator runs per
// active call; the gateway feeds it transport events and inbound media.
package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/web3mammon/sonic-prism-core/pkg/core/cache"
	"github.com/web3mammon/sonic-prism-core/pkg/core/pace"
	"github.com/web3mammon/sonic-prism-core/pkg/core/record"
	"github.com/web3mammon/sonic-prism-core/pkg/core/respond"
	"github.com/web3mammon/sonic-prism-core/pkg/core/session"
	"github.com/web3mammon/sonic-prism-core/pkg/store/calllog"
)

// apologyText is spoken when response generation or synthesis fails, so
// the caller never gets dead air.
const apologyText = "I'm sorry, I'm having trouble processing that right now. Could you please repeat?"

// paymentLinkPhrase in spoken assistant text switches the session to the
// extended payment timeout.
const paymentLinkPhrase = "payment link"

// Deps are the collaborators an orchestrator is wired with.
type Deps struct {
	Sessions    *session.Manager
	Cache       *cache.AudioCache
	Resolver    *respond.Resolver
	Recorder    *record.Recorder
	Transport   Transport
	Recognizer  Recognizer
	Synthesizer Synthesizer
	Terminator  Terminator
	Logs        calllog.Logger

	SessionConfig session.Config
	PacerConfig   pace.Config

	// GreetingKey, when set and present in the cache, is played as soon
	// as the stream starts.
	GreetingKey string
}

// Hooks are optional observation points, all nil-safe.
type Hooks struct {
	OnStateChange   func(from, to State)
	OnInterruption  func()
	OnTurn          func(latency time.Duration)
	OnStreamedBytes func(n int)
	OnDebug         func(category, message string)
}

// Orchestrator drives one call from stream start to teardown.
type Orchestrator struct {
	deps  Deps
	hooks Hooks

	mu       sync.Mutex
	state    State
	callID   string
	sess     *session.CallSession
	detector *session.TurnDetector
	pacer    *pace.StreamPacer
	ctx      context.Context
	cancel   context.CancelFunc

	closeOnce   sync.Once
	finalStatus string
}

// New creates an orchestrator. Start must be called before any media.
func New(deps Deps, hooks Hooks) *Orchestrator {
	return &Orchestrator{deps: deps, hooks: hooks, state: StateIdle}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// FinalStatus returns the teardown status, empty until Closed.
func (o *Orchestrator) FinalStatus() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.finalStatus
}

// Session returns the call session, nil before Start.
func (o *Orchestrator) Session() *session.CallSession {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess
}

// Start handles the transport "start" event: creates the session, opens
// recording, starts recognition and turn detection, and plays the
// greeting. The orchestrator moves from Idle to Streaming.
func (o *Orchestrator) Start(ctx context.Context, callID, from, to string, dir session.Direction) error {
	o.mu.Lock()
	if o.state != StateIdle {
		o.mu.Unlock()
		return fmt.Errorf("start in state %s", o.state)
	}
	o.mu.Unlock()

	sess, err := o.deps.Sessions.Create(callID, from, to, dir)
	if err != nil {
		return err
	}

	o.mu.Lock()
	o.callID = callID
	o.sess = sess
	o.ctx, o.cancel = context.WithCancel(ctx)
	var mirror pace.OutboundRecorder
	if o.deps.Recorder != nil {
		mirror = o.deps.Recorder
	}
	o.pacer = pace.New(o.deps.PacerConfig, mirror)
	o.pacer.SetDebug(o.debug)
	o.detector = session.NewTurnDetector(sess, o.deps.SessionConfig)
	o.mu.Unlock()

	if o.deps.Recorder != nil {
		if err := o.deps.Recorder.Start(callID); err != nil {
			o.debug("CALL", fmt.Sprintf("recording unavailable: %v", err))
		}
	}
	if err := o.deps.Recognizer.Start(o.ctx, o.onFragment); err != nil {
		// Degraded: the call continues without recognition until the
		// collaborator reconnects.
		o.debug("CALL", fmt.Sprintf("recognizer start failed: %v", err))
	}

	o.detector.SetCallbacks(
		func(transcript string) { go o.handleUtterance(transcript) },
		o.handleTimeout,
		o.debug,
	)
	o.detector.Start(o.ctx)
	o.setState(StateStreaming)

	if o.deps.GreetingKey != "" {
		if _, found := o.deps.Cache.Get(o.deps.GreetingKey); found {
			go o.deliver(respond.Response{Kind: respond.KindAudio, AudioKey: o.deps.GreetingKey, Intent: "Greeting"}, time.Now())
		}
	}
	return nil
}

// HandleInboundMedia processes one inbound wire-codec chunk: records it
// and feeds recognition. Recognition failures degrade, never terminate.
func (o *Orchestrator) HandleInboundMedia(payload []byte) {
	o.mu.Lock()
	callID := o.callID
	closed := o.state == StateClosed || o.state == StateIdle
	o.mu.Unlock()
	if closed {
		return
	}

	if o.deps.Recorder != nil {
		o.deps.Recorder.AddInbound(callID, time.Now(), payload)
	}
	if err := o.deps.Recognizer.Feed(payload); err != nil {
		o.debug("CALL", fmt.Sprintf("recognition feed failed: %v", err))
	}
}

// HandleStop processes the transport "stop" event.
func (o *Orchestrator) HandleStop() {
	o.close("completed")
}

// HandleTransportError terminates the call on an unrecoverable socket
// failure.
func (o *Orchestrator) HandleTransportError(err error) {
	o.debug("CALL", fmt.Sprintf("transport error: %v", err))
	o.close("transport_error")
}

// MarkPaymentLinkSent extends the inactivity timeout. Exposed for the
// out-of-band collaborator that actually delivers the link.
func (o *Orchestrator) MarkPaymentLinkSent() {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()
	if sess != nil {
		sess.MarkPaymentLinkSent(time.Now())
	}
}

// onFragment receives recognition fragments. Caller speech while the
// assistant is streaming is a barge-in: the in-flight send aborts and
// the transport drops its buffered audio.
func (o *Orchestrator) onFragment(text string, final bool, at time.Time) {
	o.mu.Lock()
	sess, detector, pacer := o.sess, o.detector, o.pacer
	o.mu.Unlock()
	if sess == nil {
		return
	}

	if strings.TrimSpace(text) != "" && sess.AISpeaking() {
		o.debug("CALL", "barge-in detected, interrupting outbound audio")
		pacer.Interrupt()
		if err := o.deps.Transport.SendClear(); err != nil {
			o.debug("CALL", fmt.Sprintf("clear failed: %v", err))
		}
		sess.CountInterruption()
		if o.hooks.OnInterruption != nil {
			o.hooks.OnInterruption()
		}
	}

	detector.AddFragment(text, final, at)
}

// handleUtterance runs one dispatch: resolve the completed transcript to
// a response and deliver it. Resolution failures degrade to the apology
// utterance rather than silence.
func (o *Orchestrator) handleUtterance(transcript string) {
	turnStart := time.Now()
	o.mu.Lock()
	if o.state == StateClosed || o.state == StateDisconnecting {
		o.mu.Unlock()
		return
	}
	sess := o.sess
	o.mu.Unlock()

	o.setState(StateDispatching)
	sess.AppendHistory("User", transcript)
	o.logConversation(calllog.ConversationRecord{
		CallID:      o.callID,
		Speaker:     "User",
		MessageType: "speech",
		Content:     transcript,
	})

	resp, err := o.deps.Resolver.Resolve(o.ctx, sess, transcript)
	if err != nil {
		o.debug("CALL", fmt.Sprintf("resolve failed: %v", err))
		resp = respond.Response{Kind: respond.KindSpeech, Text: apologyText}
	}

	o.deliver(resp, turnStart)

	sess.ResetForNextInput()
	o.mu.Lock()
	disconnecting := o.state == StateDisconnecting || o.state == StateClosed
	o.mu.Unlock()
	if !disconnecting {
		o.setState(StateStreaming)
	}
}

// deliver streams one response to the caller and records the turn.
func (o *Orchestrator) deliver(resp respond.Response, turnStart time.Time) {
	o.mu.Lock()
	sess, pacer := o.sess, o.pacer
	o.mu.Unlock()
	if sess == nil {
		return
	}

	var payload []byte
	var spoken, audioFile string
	messageType := "audio"

	switch resp.Kind {
	case respond.KindAudio:
		o.setState(StateRespondingAudio)
		data, err := o.deps.Cache.Serve(resp.AudioKey)
		if err != nil {
			o.debug("CALL", fmt.Sprintf("snippet unavailable: %v", err))
			resp = respond.Response{Kind: respond.KindSpeech, Text: apologyText, Intent: resp.Intent}
			o.deliver(resp, turnStart)
			return
		}
		payload = data
		audioFile = resp.AudioKey
		if snip, ok := o.deps.Cache.Get(resp.AudioKey); ok {
			spoken = snip.Transcript
		}
		sess.CountAudioFile()

	case respond.KindSpeech:
		o.setState(StateRespondingSpeech)
		messageType = "tts"
		data, err := o.deps.Synthesizer.Synthesize(o.ctx, resp.Text, sess.Profile.VoiceID)
		if err != nil {
			o.debug("CALL", fmt.Sprintf("synthesis failed: %v", err))
			if resp.Text == apologyText {
				// Already degraded once; give up on this turn.
				return
			}
			data, err = o.deps.Synthesizer.Synthesize(o.ctx, apologyText, sess.Profile.VoiceID)
			if err != nil {
				o.debug("CALL", fmt.Sprintf("apology synthesis failed: %v", err))
				return
			}
			resp = respond.Response{Kind: respond.KindSpeech, Text: apologyText}
		}
		payload = data
		spoken = resp.Text
		sess.CountTTSResponse()
	}

	if strings.HasSuffix(strings.TrimSpace(spoken), "?") {
		sess.MarkAIQuestion(time.Now())
	} else {
		sess.MarkAIStatement()
	}
	if strings.Contains(strings.ToLower(spoken), paymentLinkPhrase) {
		sess.MarkPaymentLinkSent(time.Now())
	}

	pacer.ClearInterrupt()
	sess.StartAISpeech()
	sent, err := pacer.Stream(o.ctx, o.deps.Transport, o.callID, payload)
	sess.EndAISpeech()

	if o.hooks.OnStreamedBytes != nil {
		o.hooks.OnStreamedBytes(sent)
	}
	switch {
	case errors.Is(err, pace.ErrInterrupted):
		o.debug("CALL", fmt.Sprintf("response interrupted after %d bytes", sent))
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		// Logged and back to listening; the transport read loop owns
		// fatal socket errors.
		o.debug("CALL", fmt.Sprintf("send failed after %d bytes: %v", sent, err))
	}

	if spoken != "" {
		sess.AppendHistory(sess.Profile.AssistantName, spoken)
	}
	o.logConversation(calllog.ConversationRecord{
		CallID:       o.callID,
		Speaker:      sess.Profile.AssistantName,
		MessageType:  messageType,
		Content:      spoken,
		AudioFile:    audioFile,
		ResponseTime: time.Since(turnStart),
	})
	if o.hooks.OnTurn != nil {
		o.hooks.OnTurn(time.Since(turnStart))
	}

	if resp.Disconnect {
		o.disconnect()
	}
}

// disconnect ends the call after the response finished streaming.
func (o *Orchestrator) disconnect() {
	o.setState(StateDisconnecting)
	if o.deps.Terminator != nil {
		if err := o.deps.Terminator.TerminateCall(o.ctx, o.callID); err != nil {
			o.debug("CALL", fmt.Sprintf("terminate failed: %v", err))
		}
	}
	if err := o.deps.Transport.SendStop(); err != nil {
		o.debug("CALL", fmt.Sprintf("stop failed: %v", err))
	}
	o.close("disconnected")
}

// handleTimeout fires on caller inactivity: stop signal, then teardown.
func (o *Orchestrator) handleTimeout() {
	o.debug("CALL", "inactivity timeout, ending call")
	if err := o.deps.Transport.SendStop(); err != nil {
		o.debug("CALL", fmt.Sprintf("stop failed: %v", err))
	}
	o.close("timeout")
}

// close tears the call down exactly once: detector and recognizer halt,
// recording finalizes in the background, summary rows are written, and
// the session leaves the registry.
func (o *Orchestrator) close(status string) {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.finalStatus = status
		sess := o.sess
		detector := o.detector
		cancel := o.cancel
		o.mu.Unlock()

		o.setState(StateClosed)
		if detector != nil {
			detector.Stop()
		}
		if cancel != nil {
			cancel()
		}
		if err := o.deps.Recognizer.Close(); err != nil {
			o.debug("CALL", fmt.Sprintf("recognizer close: %v", err))
		}
		if o.deps.Recorder != nil && o.callID != "" {
			o.deps.Recorder.Stop(o.callID)
		}

		if sess != nil {
			o.writeSummary(sess, status)
			o.deps.Sessions.Remove(o.callID)
		}
		o.debug("CALL", fmt.Sprintf("call %s closed (%s)", o.callID, status))
	})
}

func (o *Orchestrator) writeSummary(sess *session.CallSession, status string) {
	if o.deps.Logs == nil {
		return
	}
	duration := time.Since(sess.CreatedAt)
	_, audioFiles, ttsResponses := sess.Stats()

	ctx, cancelLog := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLog()

	if err := o.deps.Logs.LogCall(ctx, calllog.CallRecord{
		CallID:         sess.CallID,
		PhoneNumber:    sess.From,
		Direction:      sess.Direction.String(),
		Duration:       duration,
		AudioFilesUsed: audioFiles,
		TTSResponses:   ttsResponses,
		SessionFlags:   sess.Flags(),
		FinalStatus:    status,
	}); err != nil {
		o.debug("CALL", fmt.Sprintf("call log failed: %v", err))
	}
	if err := o.deps.Logs.LogUsage(ctx, calllog.UsageRecord{
		ClientID:      sess.ClientID,
		CallID:        sess.CallID,
		ToNumber:      sess.To,
		FromNumber:    sess.From,
		Direction:     sess.Direction.String(),
		Duration:      duration,
		BilledMinutes: calllog.BilledMinutes(duration),
	}); err != nil {
		o.debug("CALL", fmt.Sprintf("usage log failed: %v", err))
	}
}

func (o *Orchestrator) logConversation(rec calllog.ConversationRecord) {
	if o.deps.Logs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.deps.Logs.LogConversation(ctx, rec); err != nil {
		o.debug("CALL", fmt.Sprintf("conversation log failed: %v", err))
	}
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	prev := o.state
	if prev == StateClosed && next != StateClosed {
		o.mu.Unlock()
		return
	}
	o.state = next
	o.mu.Unlock()

	if prev != next {
		o.debug("STATE", fmt.Sprintf("%s -> %s", prev, next))
		if o.hooks.OnStateChange != nil {
			o.hooks.OnStateChange(prev, next)
		}
	}
}

func (o *Orchestrator) debug(category, message string) {
	if o.hooks.OnDebug != nil {
		o.hooks.OnDebug(category, message)
	}
}
