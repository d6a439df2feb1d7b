package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Manifest describes the snippet library: categories of filename→transcript
// entries plus an ordered phrase→filename quick-response table.
type Manifest struct {
	Categories map[string]map[string]string
	// QuickResponses preserves file order: the first configured phrase
	// contained in an utterance wins.
	QuickResponses []QuickResponse
}

// QuickResponse maps a trigger phrase to a snippet filename.
type QuickResponse struct {
	Phrase   string
	Filename string
}

// ParseManifest reads the snippet manifest from r. The quick_responses
// object is decoded token by token because match ordering follows the
// manifest, and encoding/json maps do not preserve key order.
func ParseManifest(r io.Reader) (*Manifest, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("manifest root must be an object, got %v", tok)
	}

	m := &Manifest{Categories: make(map[string]map[string]string)}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading manifest key: %w", err)
		}
		key := keyTok.(string)

		if key == "quick_responses" {
			qr, err := parseQuickResponses(dec)
			if err != nil {
				return nil, err
			}
			m.QuickResponses = qr
			continue
		}

		var entries map[string]string
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("parsing category %q: %w", key, err)
		}
		m.Categories[key] = entries
	}
	return m, nil
}

func parseQuickResponses(dec *json.Decoder) ([]QuickResponse, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading quick_responses: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("quick_responses must be an object")
	}

	var out []QuickResponse
	for dec.More() {
		phraseTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading quick_responses phrase: %w", err)
		}
		var filename string
		if err := dec.Decode(&filename); err != nil {
			return nil, fmt.Errorf("reading quick_responses filename: %w", err)
		}
		out = append(out, QuickResponse{Phrase: phraseTok.(string), Filename: filename})
	}
	if _, err := dec.Token(); err != nil { // closing brace
		return nil, fmt.Errorf("reading quick_responses: %w", err)
	}
	return out, nil
}

// LoadManifestFile parses the manifest at path.
func LoadManifestFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}
