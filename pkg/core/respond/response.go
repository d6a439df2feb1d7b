// Package respond resolves a completed caller utterance into a playable
// response: either a pre-encoded snippet from the audio library or text
// for speech synthesis, with optional intent and disconnect directives.
package respond

import "strings"

// Kind distinguishes the two response forms.
type Kind int

const (
	// KindAudio plays a cached snippet by library key.
	KindAudio Kind = iota
	// KindSpeech synthesizes free-form text.
	KindSpeech
)

// String returns a human-readable response kind.
func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindSpeech:
		return "speech"
	default:
		return "unknown"
	}
}

// Response is the tagged union produced by the generation adapter.
type Response struct {
	Kind Kind
	// AudioKey is the snippet filename when Kind is KindAudio.
	AudioKey string
	// Text is the synthesis input when Kind is KindSpeech.
	Text string
	// Intent is the conversation category tag, may be empty.
	Intent string
	// Disconnect requests call termination after the response plays.
	Disconnect bool
}

const (
	intentPrefix     = "INTENT:"
	generatePrefix   = "GENERATE:"
	disconnectMarker = "DISCONNECT_CALL"
)

// fallbackText is spoken when a generated response cannot be parsed into
// anything playable.
const fallbackText = "I understand. How can I help you with that?"

// Parse decodes raw generator output. The expected shape is an INTENT
// line followed by either a snippet filename or "GENERATE:" with text to
// synthesize; a DISCONNECT_CALL marker anywhere in generated text
// requests hangup after playback.
func Parse(raw string) Response {
	lines := strings.Split(strings.TrimSpace(raw), "\n")

	var intent, body string
	if len(lines) > 0 && strings.HasPrefix(lines[0], intentPrefix) {
		intent = strings.TrimSpace(strings.TrimPrefix(lines[0], intentPrefix))
		body = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	} else {
		body = strings.TrimSpace(raw)
	}
	if body == "" {
		return Response{Kind: KindSpeech, Text: fallbackText, Intent: intent}
	}

	if strings.HasPrefix(body, generatePrefix) {
		text := strings.TrimSpace(strings.TrimPrefix(body, generatePrefix))
		disconnect := strings.Contains(text, disconnectMarker)
		if disconnect {
			text = strings.TrimSpace(strings.ReplaceAll(text, disconnectMarker, ""))
		}
		if text == "" {
			text = fallbackText
		}
		return Response{Kind: KindSpeech, Text: text, Intent: intent, Disconnect: disconnect}
	}

	// Anything else is a snippet filename. Keep only the first token line
	// so trailing commentary does not break the lookup.
	key := strings.TrimSpace(strings.SplitN(body, "\n", 2)[0])
	return Response{Kind: KindAudio, AudioKey: key, Intent: intent}
}
