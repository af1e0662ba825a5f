package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	validate "github.com/mpoegel/turnstile/pkg/validate"
)

const (
	DayFormat  = "2006-01-02"
	filePrefix = "journal-"
	fileSuffix = ".jsonl"
)

// Entry is one line of the scan audit trail: every terminal outcome the
// engine surfaced, in the order the operator saw them.
type Entry struct {
	At        time.Time       `json:"at"`
	SessionID string          `json:"session_id"`
	Code      string          `json:"code"`
	Status    validate.Status `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Writer appends entries to a per-day JSONL file in Dir.
type Writer struct {
	dir string

	mu   sync.Mutex
	file *os.File
	day  string
}

func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

func (w *Writer) Append(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := e.At.Format(DayFormat)
	if w.file == nil || day != w.day {
		if w.file != nil {
			w.file.Close()
		}
		name := filepath.Join(w.dir, filePrefix+day+fileSuffix)
		file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		w.file = file
		w.day = day
	}

	return json.NewEncoder(w.file).Encode(e)
}

func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}

// Prune deletes journal files whose day is older than the cutoff.
func Prune(dir string, olderThan time.Duration) error {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-1 * olderThan)
	for _, match := range matches {
		name := filepath.Base(match)
		day := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		ts, err := time.Parse(DayFormat, day)
		if err != nil {
			continue
		}
		if cutoff.After(ts.Add(24 * time.Hour)) {
			if err := os.Remove(match); err != nil {
				slog.Error("failed to remove journal file", "file", match, "err", err)
			} else {
				slog.Info("journal file removed", "file", match)
			}
		}
	}
	return nil
}
