package session

import "time"

// Config controls turn detection and timeout behavior for a call session.
type Config struct {
	// SilenceThresholdBase is the silence required after speech before a
	// turn is considered complete.
	SilenceThresholdBase time.Duration `json:"silence_threshold_base"`
	// SilenceThresholdAfterQuestion replaces the base threshold when the
	// assistant recently asked a question, giving the caller time to think.
	SilenceThresholdAfterQuestion time.Duration `json:"silence_threshold_after_question"`
	// QuestionRecencyWindow bounds how long a question keeps the extended
	// threshold active.
	QuestionRecencyWindow time.Duration `json:"question_recency_window"`
	// PollInterval is how often the completion and timeout checks run.
	PollInterval time.Duration `json:"poll_interval"`
	// MinWords is the minimum word count of a dispatchable transcript.
	MinWords int `json:"min_words"`
	// CallTimeout ends the call after this much caller inactivity.
	CallTimeout time.Duration `json:"call_timeout"`
	// PaymentTimeout replaces CallTimeout once a payment link has been
	// sent, since callers step away to complete payment.
	PaymentTimeout time.Duration `json:"payment_timeout"`
}

// DefaultConfig returns the tuned production defaults.
func DefaultConfig() Config {
	return Config{
		SilenceThresholdBase:          1500 * time.Millisecond,
		SilenceThresholdAfterQuestion: 3 * time.Second,
		QuestionRecencyWindow:         10 * time.Second,
		PollInterval:                  50 * time.Millisecond,
		MinWords:                      2,
		CallTimeout:                   300 * time.Second,
		PaymentTimeout:                600 * time.Second,
	}
}
