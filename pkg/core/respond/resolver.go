package respond

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/web3mammon/sonic-prism-core/pkg/core/cache"
	"github.com/web3mammon/sonic-prism-core/pkg/core/session"
)

// Generator is the text-generation collaborator. It receives the caller's
// utterance with conversation context and returns raw routing output for
// Parse.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest carries everything the generator needs for one turn.
type GenerateRequest struct {
	Utterance      string
	History        []session.HistoryEntry
	SessionContext string
	BusinessName   string
	AssistantName  string
	Persona        string
	LibraryListing string
}

// Resolver routes a completed utterance to a response: quick responses
// first, then the generation collaborator.
type Resolver struct {
	cache     *cache.AudioCache
	generator Generator
	onDebug   func(category, message string)
}

// NewResolver creates a resolver over the snippet cache and generator.
func NewResolver(c *cache.AudioCache, g Generator) *Resolver {
	return &Resolver{cache: c, generator: g}
}

// SetDebug installs an optional diagnostics callback.
func (r *Resolver) SetDebug(onDebug func(category, message string)) {
	r.onDebug = onDebug
}

// Resolve produces the response for utterance. Quick-response phrases
// win without a generation round trip; otherwise the generator decides
// between a snippet key and synthesized text.
func (r *Resolver) Resolve(ctx context.Context, s *session.CallSession, utterance string) (Response, error) {
	ExtractVariables(s, utterance)

	if key, ok := r.cache.QuickResponse(utterance); ok {
		r.debug("ROUTE", fmt.Sprintf("quick response %s for %q", key, utterance))
		return Response{Kind: KindAudio, AudioKey: key, Intent: "Quick Response"}, nil
	}

	if r.generator == nil {
		r.debug("ROUTE", "no generator configured, using fallback")
		return Response{Kind: KindSpeech, Text: fallbackText}, nil
	}

	raw, err := r.generator.Generate(ctx, GenerateRequest{
		Utterance:      utterance,
		History:        s.History(),
		SessionContext: s.Context(),
		BusinessName:   s.Profile.BusinessName,
		AssistantName:  s.Profile.AssistantName,
		Persona:        s.Profile.Persona,
		LibraryListing: r.cache.LibraryListing(),
	})
	if err != nil {
		return Response{}, fmt.Errorf("generating response: %w", err)
	}

	resp := Parse(raw)
	if resp.Kind == KindAudio {
		if _, found := r.cache.Get(resp.AudioKey); !found {
			// Generator referenced a snippet that never loaded.
			r.debug("ROUTE", fmt.Sprintf("unknown snippet %q from generator", resp.AudioKey))
			return Response{Kind: KindSpeech, Text: fallbackText, Intent: resp.Intent}, nil
		}
	}
	return resp, nil
}

var (
	namePattern    = regexp.MustCompile(`(?i)\bmy name('?s| is)\s+([A-Za-z]+)`)
	urgentPattern  = regexp.MustCompile(`(?i)\b(urgent|emergency|right now|asap|flooding)\b`)
	bookingPattern = regexp.MustCompile(`(?i)\b(book|booking|appointment|schedule)\b`)
)

// ExtractVariables scrapes session variables and flags out of a caller
// utterance: stated names, urgency markers, booking requests.
func ExtractVariables(s *session.CallSession, utterance string) {
	if m := namePattern.FindStringSubmatch(utterance); m != nil {
		name := strings.ToLower(m[2])
		s.SetVariable("customer_name", strings.ToUpper(name[:1])+name[1:])
	}
	if urgentPattern.MatchString(utterance) {
		s.SetFlag("urgent_call", true)
	}
	if bookingPattern.MatchString(utterance) {
		s.SetFlag("booking_requested", true)
	}
}

func (r *Resolver) debug(category, message string) {
	if r.onDebug != nil {
		r.onDebug(category, message)
	}
}
