package call

import (
	"context"
	"time"
)

// Transport is the outbound side of the telephony media stream.
type Transport interface {
	// SendMedia writes one wire-encoded audio chunk.
	SendMedia(payload []byte) error
	// SendClear tells the transport to drop any buffered outbound audio,
	// used on barge-in.
	SendClear() error
	// SendStop signals end of stream before closing.
	SendStop() error
}

// FragmentFunc receives one recognition fragment.
type FragmentFunc func(text string, final bool, at time.Time)

// Recognizer is the speech-recognition collaborator. It consumes raw
// wire-codec audio and emits transcript fragments via the callback.
type Recognizer interface {
	Start(ctx context.Context, onFragment FragmentFunc) error
	Feed(payload []byte) error
	Close() error
}

// Synthesizer is the speech-synthesis collaborator. It returns audio
// already in the wire codec, ready for the pacer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// Terminator issues the out-of-band control command that ends the call
// at the telephony provider, distinct from closing the media stream.
type Terminator interface {
	TerminateCall(ctx context.Context, callID string) error
}
