// Package audit provides tamper-evident logging of moderation decisions.
// Entries carry counts and identifiers, never the filtered text.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Genesis is the PrevHash of the first entry.
const Genesis = "genesis"

// ErrTampered is returned by Verify when the chain or an entry hash does
// not check out.
var ErrTampered = errors.New("audit log tampered")

// Entry represents a single audit log entry
type Entry struct {
	Timestamp   time.Time      `json:"timestamp"`
	RequestID   string         `json:"request_id,omitempty"`
	Action      string         `json:"action"`
	List        string         `json:"list,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	MatchCount  int            `json:"match_count"`
	Distinct    int            `json:"distinct"`
	Decision    string         `json:"decision"`
	Actor       string         `json:"actor"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    string         `json:"prev_hash"`
	Hash        string         `json:"hash"`
}

// Logger provides append-only, tamper-evident logging
type Logger struct {
	file     *os.File
	mu       sync.Mutex
	lastHash string
	now      func() time.Time
}

// NewLogger creates a new audit logger
func NewLogger(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	logger := &Logger{
		file:     file,
		lastHash: Genesis,
		now:      func() time.Time { return time.Now().UTC() },
	}

	// Continue the chain of an existing log. An unreadable tail restarts it.
	_ = logger.loadLastHash(path)

	return logger, nil
}

// Record appends e, filling in its timestamp and chain hashes.
func (l *Logger) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Timestamp = l.now()
	e.PrevHash = l.lastHash
	e.Hash = computeHash(e)

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	l.lastHash = e.Hash

	return l.file.Sync()
}

// Log records an action that is not tied to a single request.
func (l *Logger) Log(action, decision, actor string, details map[string]any) error {
	return l.Record(Entry{Action: action, Decision: decision, Actor: actor, Details: details})
}

// Close closes the audit log file
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// computeHash hashes every field but Hash.
func computeHash(e Entry) string {
	e.Hash = ""
	data, _ := json.Marshal(e)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (l *Logger) loadLastHash(path string) error {
	entries, err := ReadAll(path)
	if err != nil {
		return err
	}
	if n := len(entries); n > 0 {
		l.lastHash = entries[n-1].Hash
	}
	return nil
}

// ReadAll reads all entries from the log file
func ReadAll(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	entries := []Entry{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for i := 0; sc.Scan(); i++ {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("failed to parse entry %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}
	return entries, nil
}

// Verify recomputes every entry hash and checks the chain links. It returns
// the number of entries verified.
func Verify(path string) (int, error) {
	entries, err := ReadAll(path)
	if err != nil {
		return 0, err
	}

	prevHash := Genesis
	for i, entry := range entries {
		if entry.PrevHash != prevHash {
			return i, fmt.Errorf("%w: chain broken at entry %d (timestamp: %s)", ErrTampered, i, entry.Timestamp)
		}
		if want := computeHash(entry); entry.Hash != want {
			return i, fmt.Errorf("%w: hash mismatch at entry %d (timestamp: %s)", ErrTampered, i, entry.Timestamp)
		}
		prevHash = entry.Hash
	}

	return len(entries), nil
}
