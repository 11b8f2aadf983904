// Package store persists the clip history as a single JSON document.
package store

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const historyFile = "history.json"

// Clip is one history entry. Entries are kept newest first.
type Clip struct {
	ID          string `json:"id"`
	EditURL     string `json:"editURL"`
	ChannelName string `json:"channelName"`
}

// UnmarshalJSON also accepts the edit_url key written by older releases.
func (c *Clip) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string `json:"id"`
		EditURL     string `json:"editURL"`
		LegacyEdit  string `json:"edit_url"`
		ChannelName string `json:"channelName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.EditURL = raw.EditURL
	if c.EditURL == "" {
		c.EditURL = raw.LegacyEdit
	}
	c.ChannelName = raw.ChannelName
	return nil
}

// Prepend returns a new slice with clip in front of history. The input is not modified.
func Prepend(history []Clip, clip Clip) []Clip {
	out := make([]Clip, 0, len(history)+1)
	out = append(out, clip)
	return append(out, history...)
}

type Store struct {
	path string
	mu   sync.Mutex
}

func HistoryPath(dir string) string {
	return filepath.Join(dir, historyFile)
}

// Open prepares a history store at path, creating its directory.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &Store{path: path}, nil
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the history. A missing file is created empty. A corrupt file
// is moved aside to history.json.corrupt so it can be recovered by hand.
func (s *Store) Load() ([]Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		log.Printf("[INFO] history file %s doesn't exist, creating it", s.path)
		return []Clip{}, s.write([]Clip{})
	}
	if err != nil {
		return []Clip{}, fmt.Errorf("read history: %w", err)
	}

	var clips []Clip
	if err := json.Unmarshal(data, &clips); err != nil {
		aside := s.path + ".corrupt"
		log.Printf("[WARN] history file %s is malformed, moving it to %s: %v", s.path, aside, err)
		if rerr := os.Rename(s.path, aside); rerr != nil {
			return []Clip{}, fmt.Errorf("move corrupt history aside: %w", rerr)
		}
		return []Clip{}, s.write([]Clip{})
	}
	if clips == nil {
		clips = []Clip{}
	}
	return clips, nil
}

// Save overwrites the history file with clips.
func (s *Store) Save(clips []Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(clips)
}

func (s *Store) write(clips []Clip) error {
	if clips == nil {
		clips = []Clip{}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(clips, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
