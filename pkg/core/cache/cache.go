// Package cache holds the pre-encoded audio snippet library in memory.
// Snippets are loaded eagerly at startup so the live call path never
// touches disk; after load the cache is read-only.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned by Serve for keys absent from the library.
var ErrNotFound = errors.New("snippet not found")

// Snippet is one cached audio payload with its spoken transcript.
type Snippet struct {
	Key        string
	Category   string
	Transcript string
	Payload    []byte
}

// AudioCache is the in-memory snippet library. Load populates it once;
// Reload is a no-op unless Clear was called first.
type AudioCache struct {
	dir     string
	onDebug func(category, message string)

	mu       sync.RWMutex
	loaded   bool
	snippets map[string]*Snippet
	quick    []QuickResponse
}

// New creates an empty cache reading payloads from dir.
func New(dir string) *AudioCache {
	return &AudioCache{
		dir:      dir,
		snippets: make(map[string]*Snippet),
	}
}

// SetDebug installs an optional diagnostics callback.
func (c *AudioCache) SetDebug(onDebug func(category, message string)) {
	c.onDebug = onDebug
}

// Load parses the manifest and eagerly reads every referenced payload.
// Manifest keys ending in .mp3 are resolved to .ulaw files on disk, since
// the transport plays the pre-companded variants. Missing payload files
// are logged and skipped rather than failing startup.
func (c *AudioCache) Load(manifestPath string) error {
	m, err := LoadManifestFile(manifestPath)
	if err != nil {
		return err
	}
	return c.LoadManifest(m)
}

// LoadManifest loads payloads for an already parsed manifest.
func (c *AudioCache) LoadManifest(m *Manifest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		c.debug("CACHE", "already loaded, skipping reload")
		return nil
	}

	loaded, missing := 0, 0
	for category, entries := range m.Categories {
		for filename, transcript := range entries {
			payload, err := os.ReadFile(filepath.Join(c.dir, wireFilename(filename)))
			if err != nil {
				missing++
				c.debug("CACHE", fmt.Sprintf("missing payload for %s: %v", filename, err))
				continue
			}
			c.snippets[filename] = &Snippet{
				Key:        filename,
				Category:   category,
				Transcript: transcript,
				Payload:    payload,
			}
			loaded++
		}
	}
	c.quick = m.QuickResponses
	c.loaded = true
	c.debug("CACHE", fmt.Sprintf("loaded %d snippets, %d missing", loaded, missing))
	return nil
}

// wireFilename maps a manifest key to the on-disk pre-companded payload.
func wireFilename(key string) string {
	if strings.HasSuffix(key, ".mp3") {
		return strings.TrimSuffix(key, ".mp3") + ".ulaw"
	}
	return key
}

// Serve returns the cached payload for key, or ErrNotFound.
func (c *AudioCache) Serve(key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snippets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return s.Payload, nil
}

// Get returns the full snippet for key, if present.
func (c *AudioCache) Get(key string) (*Snippet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snippets[key]
	return s, ok
}

// QuickResponse returns the snippet filename for the first configured
// phrase that is a substring of the lower-cased utterance. The boolean
// reports whether any phrase matched.
func (c *AudioCache) QuickResponse(utterance string) (string, bool) {
	lower := strings.ToLower(utterance)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, qr := range c.quick {
		if strings.Contains(lower, strings.ToLower(qr.Phrase)) {
			return qr.Filename, true
		}
	}
	return "", false
}

// LibraryListing renders the snippet library for the generation prompt:
// one "filename: transcript" line per snippet, grouped under category
// headers, categories and keys sorted for a stable prompt.
func (c *AudioCache) LibraryListing() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byCategory := make(map[string][]*Snippet)
	for _, s := range c.snippets {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}
	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, cat := range categories {
		fmt.Fprintf(&b, "\n%s:\n", strings.ToUpper(strings.ReplaceAll(cat, "_", " ")))
		entries := byCategory[cat]
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
		for _, s := range entries {
			fmt.Fprintf(&b, "- %s: \"%s\"\n", s.Key, s.Transcript)
		}
	}
	return b.String()
}

// Len reports how many snippets are loaded.
func (c *AudioCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snippets)
}

// Clear drops all loaded snippets so a subsequent Load takes effect.
func (c *AudioCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snippets = make(map[string]*Snippet)
	c.quick = nil
	c.loaded = false
}

func (c *AudioCache) debug(category, message string) {
	if c.onDebug != nil {
		c.onDebug(category, message)
	}
}
