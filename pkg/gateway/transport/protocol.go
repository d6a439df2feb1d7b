// Package transport implements the telephony media-stream protocol: JSON
// events over a websocket, audio as base64 mu-law inside media frames.
package transport

// Event is a decoded inbound stream event.
type Event interface {
	EventType() string
}

// ConnectedEvent is the first frame after the websocket opens.
type ConnectedEvent struct{}

// EventType implements Event.
func (ConnectedEvent) EventType() string { return "connected" }

// MediaFormat describes the negotiated audio encoding.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// StartEvent announces the stream and call identifiers.
type StartEvent struct {
	StreamSID    string
	CallSID      string
	AccountSID   string
	Tracks       []string
	MediaFormat  MediaFormat
	CustomParams map[string]string
}

// EventType implements Event.
func (StartEvent) EventType() string { return "start" }

// From returns the caller number when supplied as a custom parameter.
func (e StartEvent) From() string { return e.CustomParams["from"] }

// To returns the called number when supplied as a custom parameter.
func (e StartEvent) To() string { return e.CustomParams["to"] }

// MediaEvent carries one decoded inbound audio chunk.
type MediaEvent struct {
	Track     string
	Timestamp string
	Payload   []byte
}

// EventType implements Event.
func (MediaEvent) EventType() string { return "media" }

// MarkEvent acknowledges a previously sent mark.
type MarkEvent struct {
	Name string
}

// EventType implements Event.
func (MarkEvent) EventType() string { return "mark" }

// StopEvent ends the stream.
type StopEvent struct {
	AccountSID string
	CallSID    string
}

// EventType implements Event.
func (StopEvent) EventType() string { return "stop" }

// wire message shapes
type streamMessage struct {
	Event     string        `json:"event"`
	StreamSID string        `json:"streamSid,omitempty"`
	Start     *startPayload `json:"start,omitempty"`
	Media     *mediaPayload `json:"media,omitempty"`
	Mark      *markPayload  `json:"mark,omitempty"`
	Stop      *stopPayload  `json:"stop,omitempty"`
}

type startPayload struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters"`
}

type mediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type stopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}
