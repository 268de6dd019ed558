package receiptbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Settings are the per-chat receipt customisations.
type Settings struct {
	BusinessName   string `json:"businessName,omitempty"`
	LogoPath       string `json:"logoPath,omitempty"`
	BaseAddress    string `json:"baseAddress,omitempty"`
	NotifyPayments bool   `json:"notifyPayments,omitempty"`
}

// HasLogo reports whether the configured logo file exists.
func (s *Settings) HasLogo() bool {
	if s.LogoPath == "" {
		return false
	}
	_, err := os.Stat(s.LogoPath)
	return err == nil
}

// SettingsStore keeps one JSON file per chat under <dir>/settings and the
// uploaded logos under <dir>/logos.
type SettingsStore struct {
	dir string
	mu  sync.Mutex
}

// NewSettingsStore creates the settings and logos directories in dir.
func NewSettingsStore(dir string) (*SettingsStore, error) {
	for _, sub := range []string{"settings", "logos"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("receiptbot: create %s: %w", sub, err)
		}
	}
	return &SettingsStore{dir: dir}, nil
}

func (s *SettingsStore) path(chatID int64) string {
	return filepath.Join(s.dir, "settings", "user_"+strconv.FormatInt(chatID, 10)+".json")
}

// LogoPath is where the chat's uploaded logo is stored.
func (s *SettingsStore) LogoPath(chatID int64) string {
	return filepath.Join(s.dir, "logos", "user_"+strconv.FormatInt(chatID, 10), "logo.jpg")
}

// Load returns the chat's settings, empty when none were saved.
func (s *SettingsStore) Load(chatID int64) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(chatID)
}

func (s *SettingsStore) load(chatID int64) (*Settings, error) {
	data, err := os.ReadFile(s.path(chatID))
	if errors.Is(err, os.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, err
	}
	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("receiptbot: parse settings for %d: %w", chatID, err)
	}
	return &st, nil
}

// Update applies fn to the chat's settings and saves the result.
func (s *SettingsStore) Update(chatID int64, fn func(*Settings)) (*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(chatID)
	if err != nil {
		return nil, err
	}
	fn(st)

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return nil, err
	}
	p := s.path(chatID)
	if err := os.WriteFile(p+".tmp", data, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(p+".tmp", p); err != nil {
		return nil, err
	}
	return st, nil
}

// All returns every saved chat's settings.
func (s *SettingsStore) All() (map[int64]*Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "settings"))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*Settings)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "user_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, "user_"), ".json"), 10, 64)
		if err != nil {
			continue
		}
		st, err := s.load(id)
		if err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, nil
}
