package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentrt/goagent/pkg/convo"
)

// SessionMetrics is the per-session token/message accounting spec.md
// §6.3 names alongside the message history.
type SessionMetrics struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	TotalTokens  int    `json:"total_tokens"`
	MessageCount int    `json:"message_count"`
	WorkingDir   string `json:"working_dir"`
}

// SessionRecord is the persisted per-session-id document (spec.md §6.3
// "Session record").
type SessionRecord struct {
	Messages    []*convo.Message `json:"messages"`
	Metrics     SessionMetrics   `json:"metrics"`
	TodoContent string           `json:"todo_content,omitempty"`
}

// SessionStore persists SessionRecords by session id, one JSON document
// per id under a directory (matching the teacher's Service abstraction
// over session persistence, simplified to a single local backend since
// spec.md leaves the storage medium unspecified).
type SessionStore struct {
	dir string
	mu  sync.Mutex
}

// NewSessionStore builds a SessionStore rooted at dir, creating it if
// necessary.
func NewSessionStore(dir string) (*SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create session dir %s: %w", dir, err)
	}
	return &SessionStore{dir: dir}, nil
}

func (s *SessionStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

// Load reads a session's record. A missing session yields an empty
// SessionRecord, not an error, so callers can treat first-use and
// resume uniformly.
func (s *SessionStore) Load(sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return &SessionRecord{}, nil
		}
		return nil, fmt.Errorf("config: read session %s: %w", sessionID, err)
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("config: parse session %s: %w", sessionID, err)
	}
	return &record, nil
}

// Save persists record for sessionID, overwriting any prior record.
func (s *SessionStore) Save(sessionID string, record *SessionRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path(sessionID), data, 0o644)
}

// Delete removes a session's persisted record, if any.
func (s *SessionStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: delete session %s: %w", sessionID, err)
	}
	return nil
}
