package evaluation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one persisted evaluation. Records are append-only and
// never mutated after write.
type Record struct {
	Timestamp      time.Time `json:"timestamp"`
	ChatModel      string    `json:"chat_model"`
	CodeModel      string    `json:"code_model"`
	Prompt         string    `json:"prompt"`
	CompletionTime float64   `json:"completion_time"` // seconds
	TokensEstimate int       `json:"tokens_generated"`
	RetryCount     int       `json:"retry_count"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	CodeMetrics    *Metrics  `json:"code_metrics,omitempty"`
}

// Log is a single append-only JSON collection of evaluation records.
// Every read loads the whole file and every append rewrites it, which
// is fine at interactive single-writer scale; the mutex keeps the
// read-modify-write cycle atomic within this process.
type Log struct {
	path string
	mu   sync.Mutex
}

// NewLog opens (creating if needed) an evaluation log at path.
func NewLog(path string) (*Log, error) {
	l := &Log{path: path}
	if err := ensureLogFile(path); err != nil {
		return nil, err
	}
	return l, nil
}

// ensureLogFile creates the parent directory and an empty JSON array
// file when either does not exist yet.
func ensureLogFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
			return fmt.Errorf("create log file: %w", err)
		}
	}
	return nil
}

// Append adds one record to the log.
func (l *Log) Append(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readLocked()
	if err != nil {
		return err
	}
	records = append(records, rec)
	return l.writeLocked(records)
}

// All returns every stored record in append order.
func (l *Log) All() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readLocked()
}

// Len returns the number of stored records.
func (l *Log) Len() (int, error) {
	records, err := l.All()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (l *Log) readLocked() ([]Record, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read evaluation log: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode evaluation log: %w", err)
	}
	return records, nil
}

func (l *Log) writeLocked(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode evaluation log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write evaluation log: %w", err)
	}
	return nil
}
