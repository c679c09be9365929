// Package feedback collects and analyzes user feedback on generated
// code. The store is an append-only JSON collection keyed by the
// artifact's code_id, with at-most-one-entry-per-id idempotence; the
// analyzer produces LLM-assisted insights over the stored entries.
package feedback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one user's feedback on one generated artifact.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	CodeID      string    `json:"code_id"`
	Rating      int       `json:"rating"` // 1..5
	Comment     string    `json:"comment"`
	ChatModel   string    `json:"chat_model"`
	CodeModel   string    `json:"code_model"`
	Code        string    `json:"code"`
	Prompt      string    `json:"prompt"`
	Description string    `json:"code_description"`
}

// Store is a single append-only JSON collection of feedback entries.
// Every read loads the whole file and every write rewrites it; the
// mutex keeps the read-modify-write cycle atomic within this process
// (the layout is not safe under concurrent writer processes).
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore opens (creating if needed) a feedback log at path.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create feedback directory: %w", err)
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return nil, fmt.Errorf("create feedback file: %w", err)
		}
	}
	return s, nil
}

// IsRecorded reports whether feedback already exists for a code_id.
func (s *Store) IsRecorded(codeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRecordedLocked(codeID)
}

func (s *Store) isRecordedLocked(codeID string) (bool, error) {
	entries, err := s.readLocked()
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.CodeID == codeID {
			return true, nil
		}
	}
	return false, nil
}

// Record persists a feedback entry. Submission is idempotent per
// code_id: if an entry already exists, Record succeeds without writing
// (first write wins) and returns stored=false. A zero Timestamp is
// filled with the current time.
func (s *Store) Record(e Entry) (stored bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.isRecordedLocked(e.CodeID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	entries, err := s.readLocked()
	if err != nil {
		return false, err
	}
	entries = append(entries, e)
	if err := s.writeLocked(entries); err != nil {
		return false, err
	}
	return true, nil
}

// All returns every stored entry in append order.
func (s *Store) All() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read feedback log: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode feedback log: %w", err)
	}
	return entries, nil
}

func (s *Store) writeLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode feedback log: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write feedback log: %w", err)
	}
	return nil
}
