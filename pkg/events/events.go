// Package events records every sync activation, degradation, and teardown
// in a durable, append-only log for diagnostics. Entries are one JSON
// object per line; prior entries are never rewritten. The only writers are
// the sync session manager and the teardown watcher.
package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"github.com/burrow-dev/burrow/pkg/errors"
)

// Event types, fixed vocabulary.
const (
	TypeActivate       = "activate"
	TypeReady          = "ready"
	TypeDegrade        = "degrade"
	TypeTeardown       = "teardown"
	TypeTeardownFailed = "teardown-failed"
)

const (
	logFileName = "sync-events.jsonl"

	maxBytesKey     = "BURROW_EVENT_LOG_MAX_BYTES"
	defaultMaxBytes = 1 << 20
)

// Event is one entry in the sync event log.
type Event struct {
	Timestamp string `json:"timestamp"`
	VM        string `json:"vm"`
	Role      string `json:"role,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// Log appends events to <state>/logs/sync-events.jsonl, rotating the file
// once it grows past the configured size.
type Log struct {
	fs       afero.Fs
	path     string
	maxBytes int64
	now      func() time.Time
}

// NewLog returns a Log writing under stateDir.
func NewLog(fs afero.Fs, stateDir string) *Log {
	maxBytes := int64(defaultMaxBytes)
	if raw := os.Getenv(maxBytesKey); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			maxBytes = v
		}
	}

	return &Log{
		fs:       fs,
		path:     filepath.Join(stateDir, "logs", logFileName),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// Append writes one event. The prior contents of the log are never
// modified; at most the full file is rotated aside first.
func (l *Log) Append(vm, role, eventType, reason string) error {
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return errors.WithContext(err, "create log dir")
	}

	if err := l.rotateIfNeeded(); err != nil {
		return errors.WithContext(err, "rotate")
	}

	entry := Event{
		Timestamp: l.now().UTC().Format(time.RFC3339),
		VM:        vm,
		Role:      role,
		Event:     eventType,
		Reason:    reason,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	f, err := l.fs.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.WithContext(err, "open log")
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.WithContext(err, "append")
	}
	return nil
}

// Read returns every event currently in the active log. Unparseable lines
// are skipped rather than failing the whole read.
func (l *Log) Read() ([]Event, error) {
	contents, err := afero.ReadFile(l.fs, l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "read log")
	}

	var events []Event
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var entry Event
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		events = append(events, entry)
	}
	return events, nil
}

func (l *Log) rotateIfNeeded() error {
	info, err := l.fs.Stat(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() < l.maxBytes {
		return nil
	}
	return l.fs.Rename(l.path, l.path+".1")
}
