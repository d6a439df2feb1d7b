package respond

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator on the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator using the given API key and model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(buildPrompt(req)),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(buildSystemPrompt(req), genai.RoleUser),
			Temperature:       genai.Ptr[float32](0.7),
			MaxOutputTokens:   200,
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned empty response")
	}
	return text, nil
}

func buildSystemPrompt(req GenerateRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the phone assistant for %s.\n", req.AssistantName, req.BusinessName)
	if req.Persona != "" {
		b.WriteString(req.Persona + "\n")
	}
	b.WriteString(`
You route each caller utterance to a response.

=== INTENT DETECTION ===
Classify the caller's intent before responding.

=== RESPONSE FORMAT ===
First line: INTENT:[category] (e.g., INTENT:Emergency Service)
Second line: an audio file filename from the library below, OR "GENERATE:" followed by the exact text to speak.

Rules:
- Prefer library audio whenever a file answers the caller.
- Specific questions not covered by audio: GENERATE: [short response]
- To end the call politely, include DISCONNECT_CALL in generated text.

=== AUDIO LIBRARY ===
`)
	b.WriteString(req.LibraryListing)
	return b.String()
}

func buildPrompt(req GenerateRequest) string {
	var b strings.Builder
	if len(req.History) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, h := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", h.Speaker, h.Message)
		}
	}
	if req.SessionContext != "" {
		fmt.Fprintf(&b, "Session context: %s\n", req.SessionContext)
	}
	fmt.Fprintf(&b, "Caller: %s", req.Utterance)
	return b.String()
}
