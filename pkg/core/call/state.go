package call

// State is the orchestrator's lifecycle state.
type State int

const (
	// StateIdle is the initial state before the transport stream starts.
	StateIdle State = iota
	// StateStreaming accumulates inbound audio and transcript fragments.
	StateStreaming
	// StateDispatching resolves a completed utterance into a response.
	StateDispatching
	// StateRespondingAudio streams a cached snippet to the caller.
	StateRespondingAudio
	// StateRespondingSpeech synthesizes text and streams the result.
	StateRespondingSpeech
	// StateDisconnecting drains in-flight audio then ends the call.
	StateDisconnecting
	// StateClosed is terminal; session and recorder are released.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStreaming:
		return "STREAMING"
	case StateDispatching:
		return "DISPATCHING"
	case StateRespondingAudio:
		return "RESPONDING_AUDIO"
	case StateRespondingSpeech:
		return "RESPONDING_SPEECH"
	case StateDisconnecting:
		return "DISCONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
