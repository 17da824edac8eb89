// Package session holds the session-scoped state shared with the auth layer:
// the auth mode flag, local tokens and the sound alert preference.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rickgao/notifystream/internal/auth"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Data is the persisted session document.
type Data struct {
	AuthMode            string `yaml:"auth_mode,omitempty"`
	AccessToken         string `yaml:"access_token,omitempty"`
	RefreshToken        string `yaml:"refresh_token,omitempty"`
	SoundAlertsDisabled bool   `yaml:"sound_alerts_disabled,omitempty"`
}

// Store is a concurrency-safe session store. With an empty path it keeps
// state in memory only; otherwise every mutation is written to the file.
type Store struct {
	mu     sync.RWMutex
	path   string
	data   Data
	logger *zap.Logger
}

// Open loads the session file at path. A missing file yields an empty session.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{path: path, logger: logger.Named("session")}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse session file: %w", err)
	}
	if _, err := auth.ParseMode(s.data.AuthMode); err != nil {
		return nil, fmt.Errorf("session file: %w", err)
	}
	return s, nil
}

// NewMemory returns a store that is never persisted.
func NewMemory(data Data) *Store {
	return &Store{data: data, logger: zap.NewNop()}
}

// AuthMode returns the session's auth mode flag.
func (s *Store) AuthMode() auth.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mode, _ := auth.ParseMode(s.data.AuthMode)
	return mode
}

// AccessToken returns the cached local access token.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AccessToken
}

// RefreshToken returns the stored refresh token.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.RefreshToken
}

// HasCredential reports whether the session can authenticate at all.
func (s *Store) HasCredential() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mode, _ := auth.ParseMode(s.data.AuthMode)
	return mode == auth.ModeIdentityProvider || s.data.AccessToken != ""
}

// SoundEnabled reports whether audio cues are allowed.
func (s *Store) SoundEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.data.SoundAlertsDisabled
}

// SaveAccessToken stores a refreshed access token. An empty refresh keeps
// the current refresh token.
func (s *Store) SaveAccessToken(access, refresh string) error {
	return s.update(func(d *Data) {
		d.AccessToken = access
		if refresh != "" {
			d.RefreshToken = refresh
		}
	})
}

// SetTokens records a new login.
func (s *Store) SetTokens(mode auth.Mode, access, refresh string) error {
	return s.update(func(d *Data) {
		d.AuthMode = mode.String()
		d.AccessToken = access
		d.RefreshToken = refresh
	})
}

// SetSoundEnabled records the sound alert preference.
func (s *Store) SetSoundEnabled(enabled bool) error {
	return s.update(func(d *Data) {
		d.SoundAlertsDisabled = !enabled
	})
}

// Clear drops credentials and keeps preferences.
func (s *Store) Clear() error {
	return s.update(func(d *Data) {
		*d = Data{SoundAlertsDisabled: d.SoundAlertsDisabled}
	})
}

func (s *Store) update(fn func(*Data)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.data)
	if s.path == "" {
		return nil
	}
	if err := writeFile(s.path, s.data); err != nil {
		s.logger.Warn("persist session", zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

// writeFile replaces path atomically.
func writeFile(path string, data Data) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}
