package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/thinkwright/caffeine-clipper/internal/twitch"
)

const (
	ColorModeDark  = "dark"
	ColorModeLight = "light"

	settingsFile = "settings.json"
	appName      = "caffeine-clipper"
)

// Settings is the single persisted record of an installation. It is treated
// as a value: callers replace it rather than mutate a shared copy.
type Settings struct {
	ClientID    string `json:"clientId"`
	BearerToken string `json:"bearerToken"`
	ChannelName string `json:"channelName"`
	BroadcastID string `json:"broadcastID"`
	ColorMode   string `json:"colorMode"`
}

func DefaultSettings() Settings {
	return Settings{ColorMode: ColorModeDark}
}

// WithChannel returns a copy targeting name. The broadcast id only ever
// belongs to the channel that produced it, so it is dropped.
func (s Settings) WithChannel(name string) Settings {
	s.ChannelName = name
	s.BroadcastID = ""
	return s
}

func (s Settings) Credentials() twitch.Credentials {
	return twitch.Credentials{ClientID: s.ClientID, BearerToken: s.BearerToken}
}

// DarkMode reports whether the dark palette applies. Unknown values fall back to dark.
func (s Settings) DarkMode() bool {
	return s.ColorMode != ColorModeLight
}

// DataDir is the per-user application data directory holding settings,
// history, the token file and logs.
func DataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// Store reads and writes settings.json inside a data directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, settingsFile)
}

// Load returns the persisted settings. A missing or unreadable file is
// replaced with defaults, which are written back before returning. The
// returned Settings is always usable; the error only reports that the
// defaults could not be persisted.
func (s *Store) Load() (Settings, error) {
	cfg := DefaultSettings()
	data, err := os.ReadFile(s.Path())
	if err == nil {
		if err = json.Unmarshal(data, &cfg); err == nil {
			return cfg, nil
		}
		log.Printf("[WARN] settings file %s is malformed, resetting to defaults: %v", s.Path(), err)
		cfg = DefaultSettings()
	} else if !os.IsNotExist(err) {
		log.Printf("[WARN] can't read settings file %s, resetting to defaults: %v", s.Path(), err)
	} else {
		log.Printf("[INFO] settings file %s doesn't exist, creating it", s.Path())
	}

	if err := s.Save(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save overwrites the settings file with cfg.
func (s *Store) Save(cfg Settings) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	// the file holds the bearer token
	if err := os.WriteFile(s.Path(), data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
