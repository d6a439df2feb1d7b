// Package pace streams wire-encoded audio to the transport in fixed-size
// chunks with a short inter-frame delay, checking for barge-in before
// each chunk so a caller interruption aborts the send mid-stream.
package pace

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrInterrupted reports that a send was aborted by barge-in. The
// remainder of the buffer was not delivered.
var ErrInterrupted = errors.New("stream interrupted")

// MediaSender delivers one wire-encoded chunk to the transport, wrapped
// in the transport envelope.
type MediaSender interface {
	SendMedia(payload []byte) error
}

// OutboundRecorder mirrors sent chunks into the call recording.
type OutboundRecorder interface {
	Active(callID string) bool
	AddOutbound(callID string, at time.Time, data []byte)
}

// Config holds the pacing parameters. The defaults are empirically tuned
// for 8kHz 8-bit mono telephony audio, not protocol requirements.
type Config struct {
	// ChunkSize is the bytes per frame, roughly one second of audio.
	ChunkSize int `json:"chunk_size"`
	// FrameDelay is the pause between consecutive frames.
	FrameDelay time.Duration `json:"frame_delay"`
}

// DefaultConfig returns the production pacing parameters.
func DefaultConfig() Config {
	return Config{
		ChunkSize:  8000,
		FrameDelay: 20 * time.Millisecond,
	}
}

// StreamPacer sends audio for one call. A single pacer instance is owned
// by the call's orchestrator; Interrupt may be called from any goroutine.
type StreamPacer struct {
	config      Config
	recorder    OutboundRecorder
	onDebug     func(category, message string)
	interrupted atomic.Bool
}

// New creates a pacer. recorder may be nil when recording is disabled.
func New(cfg Config, recorder OutboundRecorder) *StreamPacer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	return &StreamPacer{config: cfg, recorder: recorder}
}

// SetDebug installs an optional diagnostics callback.
func (p *StreamPacer) SetDebug(onDebug func(category, message string)) {
	p.onDebug = onDebug
}

// Interrupt aborts the in-flight send before its next full chunk.
func (p *StreamPacer) Interrupt() {
	p.interrupted.Store(true)
}

// ClearInterrupt resets the flag ahead of a new response.
func (p *StreamPacer) ClearInterrupt() {
	p.interrupted.Store(false)
}

// Interrupted reports whether the flag is set.
func (p *StreamPacer) Interrupted() bool {
	return p.interrupted.Load()
}

// Stream sends data to dst in paced chunks, mirroring each sent chunk to
// the recorder for callID. It returns the bytes actually sent. The send
// aborts with ErrInterrupted if the interrupt flag is set before a full
// chunk; a trailing partial chunk is always flushed once reached.
func (p *StreamPacer) Stream(ctx context.Context, dst MediaSender, callID string, data []byte) (int, error) {
	sent := 0
	for off := 0; off < len(data); off += p.config.ChunkSize {
		end := off + p.config.ChunkSize
		partial := false
		if end > len(data) {
			end = len(data)
			partial = true
		}

		if !partial && p.interrupted.Load() {
			p.debug("PACE", "send aborted by barge-in")
			return sent, ErrInterrupted
		}
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		chunk := data[off:end]
		if err := dst.SendMedia(chunk); err != nil {
			return sent, err
		}
		sent += len(chunk)

		if p.recorder != nil && p.recorder.Active(callID) {
			p.recorder.AddOutbound(callID, time.Now(), chunk)
		}

		if end < len(data) && p.config.FrameDelay > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-time.After(p.config.FrameDelay):
			}
		}
	}
	return sent, nil
}

func (p *StreamPacer) debug(category, message string) {
	if p.onDebug != nil {
		p.onDebug(category, message)
	}
}
