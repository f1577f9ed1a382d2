package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/tasklink/internal/registry"
)

func TestOpen_MissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	d := s.Data()
	if d.TaskIDIndex != 0 || len(d.TaskIDLookup) != 0 {
		t.Errorf("expected empty settings, got %+v", d)
	}
}

func TestRegistryRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "settings.yaml")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg, err := registry.Open(ctx, s, registry.WithPrefix(func() string { return "abcd" }))
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	tok, err := reg.Mint(ctx, "remote-1")
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d := reloaded.Data()
	if d.TaskIDIndex != 1 {
		t.Errorf("index = %d, want 1", d.TaskIDIndex)
	}
	if d.TaskIDLookup[tok] != "remote-1" {
		t.Errorf("lookup = %v", d.TaskIDLookup)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".tasklink-settings-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestRecordMint_FailureRollsBack(t *testing.T) {
	dir := t.TempDir()
	// A directory at the target path makes the rename fail.
	path := filepath.Join(dir, "settings.yaml")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	s := &Store{path: path, data: Data{TaskIDLookup: map[string]string{}}}

	if err := s.RecordMint(context.Background(), "tok00001", "r", 1); err == nil {
		t.Fatal("expected error")
	}
	d := s.Data()
	if len(d.TaskIDLookup) != 0 || d.TaskIDIndex != 0 {
		t.Errorf("state not rolled back: %+v", d)
	}
}

func TestSetListID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	s, _ := Open(path)
	if err := s.SetListID("list-42"); err != nil {
		t.Fatalf("SetListID: %v", err)
	}
	reloaded, _ := Open(path)
	if reloaded.Data().ListID != "list-42" {
		t.Errorf("list id = %q", reloaded.Data().ListID)
	}
}
