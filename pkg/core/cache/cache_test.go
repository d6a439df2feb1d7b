package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `{
  "greetings": {
    "hello.mp3": "Hi, thanks for calling!",
    "after_hours.mp3": "We're closed right now."
  },
  "services": {
    "blocked_drain.mp3": "We can help with that blocked drain."
  },
  "quick_responses": {
    "are you a robot": "robot_reply.mp3",
    "robot": "robot_short.mp3",
    "opening hours": "hours.mp3"
  }
}`

func writeTestLibrary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"hello.ulaw":         "hello-bytes",
		"after_hours.ulaw":   "closed-bytes",
		"blocked_drain.ulaw": "drain-bytes",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	manifestPath := filepath.Join(dir, "audio_snippets.json")
	if err := os.WriteFile(manifestPath, []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestParseManifestPreservesQuickResponseOrder(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(m.QuickResponses) != 3 {
		t.Fatalf("quick responses = %d, want 3", len(m.QuickResponses))
	}
	if m.QuickResponses[0].Phrase != "are you a robot" {
		t.Errorf("first phrase = %q, want %q", m.QuickResponses[0].Phrase, "are you a robot")
	}
	if m.Categories["greetings"]["hello.mp3"] != "Hi, thanks for calling!" {
		t.Errorf("greeting transcript missing")
	}
}

func TestLoadAndServe(t *testing.T) {
	dir := writeTestLibrary(t)
	c := New(dir)
	if err := c.Load(filepath.Join(dir, "audio_snippets.json")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 3 {
		t.Fatalf("loaded %d snippets, want 3", c.Len())
	}

	payload, err := c.Serve("hello.mp3")
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if string(payload) != "hello-bytes" {
		t.Errorf("payload = %q, want bytes from hello.ulaw", payload)
	}

	if _, err := c.Serve("nope.mp3"); err == nil {
		t.Error("Serve for absent key should fail")
	}
}

func TestLoadSkipsMissingFiles(t *testing.T) {
	dir := writeTestLibrary(t)
	if err := os.Remove(filepath.Join(dir, "after_hours.ulaw")); err != nil {
		t.Fatal(err)
	}
	c := New(dir)
	if err := c.Load(filepath.Join(dir, "audio_snippets.json")); err != nil {
		t.Fatalf("Load should tolerate missing payloads: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("loaded %d snippets, want 2", c.Len())
	}
	if _, err := c.Serve("after_hours.mp3"); err == nil {
		t.Error("missing payload should not be served")
	}
}

func TestQuickResponseFirstMatchWins(t *testing.T) {
	dir := writeTestLibrary(t)
	c := New(dir)
	if err := c.Load(filepath.Join(dir, "audio_snippets.json")); err != nil {
		t.Fatal(err)
	}

	// "are you a robot" contains both "are you a robot" and "robot";
	// manifest order picks the longer phrase listed first.
	key, ok := c.QuickResponse("Hey, are you a robot or what?")
	if !ok || key != "robot_reply.mp3" {
		t.Errorf("QuickResponse = %q %v, want robot_reply.mp3 true", key, ok)
	}

	key, ok = c.QuickResponse("what a ROBOT voice")
	if !ok || key != "robot_short.mp3" {
		t.Errorf("QuickResponse = %q %v, want robot_short.mp3 true", key, ok)
	}

	if _, ok := c.QuickResponse("I have a blocked drain"); ok {
		t.Error("no quick phrase should match a plain service request")
	}
}

func TestReloadIsNoOpUntilCleared(t *testing.T) {
	dir := writeTestLibrary(t)
	c := New(dir)
	manifest := filepath.Join(dir, "audio_snippets.json")
	if err := c.Load(manifest); err != nil {
		t.Fatal(err)
	}

	// Mutate a payload on disk; a second Load must not pick it up.
	if err := os.WriteFile(filepath.Join(dir, "hello.ulaw"), []byte("changed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(manifest); err != nil {
		t.Fatal(err)
	}
	payload, _ := c.Serve("hello.mp3")
	if string(payload) != "hello-bytes" {
		t.Errorf("reload without clear replaced payload: %q", payload)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("cache not empty after Clear")
	}
	if err := c.Load(manifest); err != nil {
		t.Fatal(err)
	}
	payload, _ = c.Serve("hello.mp3")
	if string(payload) != "changed" {
		t.Errorf("load after Clear kept stale payload: %q", payload)
	}
}

func TestLibraryListingSkipsQuickResponses(t *testing.T) {
	dir := writeTestLibrary(t)
	c := New(dir)
	if err := c.Load(filepath.Join(dir, "audio_snippets.json")); err != nil {
		t.Fatal(err)
	}
	listing := c.LibraryListing()
	if !strings.Contains(listing, "blocked_drain.mp3") {
		t.Errorf("listing missing snippet entry:\n%s", listing)
	}
	if strings.Contains(listing, "robot_reply") {
		t.Errorf("listing should not include quick responses:\n%s", listing)
	}
}
