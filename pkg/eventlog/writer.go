// Package eventlog records every engine decision to rotated JSONL files,
// giving an audit trail of who moved through which transition when.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one logged engine decision.
type Entry struct {
	ID        string    `json:"id"`
	TraineeID string    `json:"trainee_id"`
	FromState string    `json:"from_state"`
	ToState   string    `json:"to_state"`
	Event     string    `json:"event"`
	Accepted  bool      `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEntry creates an entry with a fresh id and timestamp.
func NewEntry(traineeID, from, to, event string, accepted bool) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		TraineeID: traineeID,
		FromState: from,
		ToState:   to,
		Event:     event,
		Accepted:  accepted,
		Timestamp: time.Now().UTC(),
	}
}

// Writer appends entries to rotated JSONL files.
type Writer struct {
	logDir      string
	rotation    time.Duration
	currentFile *os.File
	currentPath string
	windowStart time.Time
	mu          sync.Mutex
}

// NewWriter creates a writer rooted at logDir, creating it if needed.
// Files rotate every rotationHours; values <= 0 default to daily.
func NewWriter(logDir string, rotationHours int) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if rotationHours <= 0 {
		rotationHours = 24
	}

	w := &Writer{
		logDir:   logDir,
		rotation: time.Duration(rotationHours) * time.Hour,
	}
	if err := w.rotateIfNeeded(); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return w, nil
}

// Write appends one entry, rotating to a new file on window change.
func (w *Writer) Write(entry *Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotateIfNeeded(); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to serialize entry: %w", err)
	}
	if _, err := w.currentFile.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	if err := w.currentFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	return nil
}

// fileName returns the log file name for a rotation window. Daily windows
// keep the plain date name; sub-daily windows include the hour.
func (w *Writer) fileName(windowStart time.Time) string {
	if w.rotation >= 24*time.Hour {
		return fmt.Sprintf("transitions-%s.jsonl", windowStart.Format("2006-01-02"))
	}
	return fmt.Sprintf("transitions-%s.jsonl", windowStart.Format("2006-01-02T15"))
}

func (w *Writer) rotateIfNeeded() error {
	windowStart := time.Now().UTC().Truncate(w.rotation)
	if w.currentFile != nil && w.windowStart.Equal(windowStart) {
		return nil
	}

	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, w.fileName(windowStart))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	w.currentFile = file
	w.currentPath = path
	w.windowStart = windowStart
	return nil
}

// CurrentLogFile returns the path of the active log file.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentFile == nil {
		return ""
	}
	return w.currentPath
}

// Close closes the current log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return nil
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	if err != nil {
		return fmt.Errorf("failed to close event log file: %w", err)
	}
	return nil
}

// ReadEntries reads and parses all entries from a log file.
func ReadEntries(path string) ([]*Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var entries []*Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entry := &Entry{}
		if err := json.Unmarshal(line, entry); err != nil {
			return nil, fmt.Errorf("failed to parse entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	return entries, nil
}
