// Package memory is the in-process store used when no database is
// configured, and by tests.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alpha-ultimate/yusra/pkg/chat"
	"github.com/alpha-ultimate/yusra/pkg/settings"
)

// Store keeps per-user state as serialized JSON documents, mirroring the
// shape the durable store persists.
type Store struct {
	mu       sync.Mutex
	sessions map[string][]byte
	prefs    map[string][]byte
}

func New() *Store {
	return &Store{
		sessions: make(map[string][]byte),
		prefs:    make(map[string][]byte),
	}
}

func (s *Store) LoadSessions(_ context.Context, userID string) ([]*chat.ChatSession, error) {
	s.mu.Lock()
	raw, ok := s.sessions[userID]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var out []*chat.ChatSession
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SaveSessions(_ context.Context, userID string, sessions []*chat.ChatSession) error {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[userID] = raw
	s.mu.Unlock()
	return nil
}

func (s *Store) LoadSettings(_ context.Context, userID string) (settings.Settings, error) {
	s.mu.Lock()
	raw, ok := s.prefs[userID]
	s.mu.Unlock()
	if !ok {
		return settings.Defaults(), nil
	}
	var out settings.Settings
	if err := json.Unmarshal(raw, &out); err != nil {
		return settings.Defaults(), err
	}
	return out, nil
}

func (s *Store) SaveSettings(_ context.Context, userID string, prefs settings.Settings) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.prefs[userID] = raw
	s.mu.Unlock()
	return nil
}
