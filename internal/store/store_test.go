package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// openTestStore creates a history store in a temp directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(HistoryPath(t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestLoad_MissingFileCreatesEmpty(t *testing.T) {
	s := openTestStore(t)

	clips, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if clips == nil || len(clips) != 0 {
		t.Errorf("expected empty non-nil history, got %#v", clips)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("history file not created: %v", err)
	}
	var onDisk []Clip
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("history file is not a JSON array: %v", err)
	}
	if len(onDisk) != 0 {
		t.Errorf("expected empty array on disk, got %s", data)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := openTestStore(t)

	clips := []Clip{
		{ID: "new", EditURL: "https://clips.twitch.tv/edit/new", ChannelName: "shroud"},
		{ID: "old", EditURL: "https://clips.twitch.tv/edit/old", ChannelName: "shroud"},
	}
	if err := s.Save(clips); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(loaded, clips) {
		t.Errorf("got %+v, want %+v", loaded, clips)
	}
}

func TestSave_NilWritesEmptyArray(t *testing.T) {
	s := openTestStore(t)
	s.Save([]Clip{{ID: "x"}})

	if err := s.Save(nil); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(s.Path())
	var onDisk []Clip
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk == nil || len(onDisk) != 0 {
		t.Errorf("expected [] on disk, got %s", data)
	}
}

func TestSave_JSONKeys(t *testing.T) {
	s := openTestStore(t)
	s.Save([]Clip{{ID: "abc123", EditURL: "https://clips.twitch.tv/edit/abc123", ChannelName: "shroud"}})

	data, _ := os.ReadFile(s.Path())
	var parsed []map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatal(err)
	}
	want := map[string]string{
		"id":          "abc123",
		"editURL":     "https://clips.twitch.tv/edit/abc123",
		"channelName": "shroud",
	}
	if len(parsed) != 1 || !reflect.DeepEqual(parsed[0], want) {
		t.Errorf("got %v, want [%v]", parsed, want)
	}
}

func TestLoad_LegacyEditURLKey(t *testing.T) {
	s := openTestStore(t)
	legacy := `[{"id":"abc","edit_url":"https://clips.twitch.tv/edit/abc","channelName":"shroud"}]`
	os.WriteFile(s.Path(), []byte(legacy), 0o644)

	clips, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 1 {
		t.Fatalf("expected 1 clip, got %d", len(clips))
	}
	if clips[0].EditURL != "https://clips.twitch.tv/edit/abc" {
		t.Errorf("EditURL = %q", clips[0].EditURL)
	}
}

func TestLoad_CorruptFileMovedAside(t *testing.T) {
	s := openTestStore(t)
	os.WriteFile(s.Path(), []byte("{broken"), 0o644)

	clips, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(clips) != 0 {
		t.Errorf("expected empty history, got %d", len(clips))
	}

	aside, err := os.ReadFile(s.Path() + ".corrupt")
	if err != nil {
		t.Fatalf("corrupt file not preserved: %v", err)
	}
	if string(aside) != "{broken" {
		t.Errorf("corrupt copy = %q", aside)
	}
}

func TestSave_UnwritableDir(t *testing.T) {
	s := openTestStore(t)

	// replace the directory with a regular file
	dir := filepath.Dir(s.Path())
	os.RemoveAll(dir)
	os.WriteFile(dir, []byte("x"), 0o644)
	t.Cleanup(func() { os.Remove(dir) })

	if err := s.Save([]Clip{{ID: "x"}}); err == nil {
		t.Fatal("expected error when history dir is not writable")
	}
}

func TestPrepend(t *testing.T) {
	history := []Clip{{ID: "b"}, {ID: "a"}}
	out := Prepend(history, Clip{ID: "c"})

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	if out[0].ID != "c" || out[1].ID != "b" || out[2].ID != "a" {
		t.Errorf("order = %v", out)
	}
	if len(history) != 2 || history[0].ID != "b" {
		t.Error("Prepend must not modify its input")
	}
}

func TestPrepend_Empty(t *testing.T) {
	out := Prepend(nil, Clip{ID: "only"})
	if len(out) != 1 || out[0].ID != "only" {
		t.Errorf("got %v", out)
	}
}
