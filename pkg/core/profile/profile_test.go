package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookupConfiguredNumber(t *testing.T) {
	store := NewStore(map[string]*Profile{
		"+61400000001": {ClientID: "jameson", BusinessName: "Jameson Plumbing"},
	})

	p, ok := store.Lookup("+61400000001")
	if !ok {
		t.Fatal("configured number should resolve")
	}
	if p.ClientID != "jameson" {
		t.Errorf("client id = %q", p.ClientID)
	}
}

func TestLookupFallsBackToDefault(t *testing.T) {
	store := NewStore(nil)
	p, ok := store.Lookup("+15550009999")
	if ok {
		t.Error("unconfigured number should report fallback")
	}
	def := Default()
	if p.ClientID != def.ClientID || p.BusinessName != def.BusinessName {
		t.Errorf("fallback profile = %+v, want default", p)
	}
	if p.BusinessHours != "Mon-Fri 8AM-6PM, Sat 8AM-4PM" {
		t.Errorf("default hours = %q", p.BusinessHours)
	}
	if len(p.FlagTemplate) == 0 {
		t.Error("default profile needs a session flag template")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	content := `{"+61400000002": {"client_id": "acme", "business_name": "Acme Drains", "session_flags_template": {"intro_played": false}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	p, ok := store.Lookup("+61400000002")
	if !ok || p.BusinessName != "Acme Drains" {
		t.Errorf("Lookup = %+v %v", p, ok)
	}
}
