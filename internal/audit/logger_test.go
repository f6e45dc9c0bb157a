package audit

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit", "audit.log")

	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer logger.Close()

	if logger.lastHash != Genesis {
		t.Errorf("expected genesis hash, got %s", logger.lastHash)
	}
}

func TestLogger_Record(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.log")

	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = logger.Record(Entry{
		RequestID:   "req-1",
		Action:      "filter",
		List:        "profanity",
		Fingerprint: "00ff",
		MatchCount:  3,
		Distinct:    2,
		Decision:    "review",
		Actor:       "api:ci",
	})
	if err != nil {
		t.Fatalf("record error: %v", err)
	}
	if logger.lastHash == Genesis {
		t.Error("lastHash should have changed after logging")
	}
	logger.Close()

	entries, err := ReadAll(logPath)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.RequestID != "req-1" || e.MatchCount != 3 || e.Decision != "review" {
		t.Errorf("entry = %+v", e)
	}
	if e.PrevHash != Genesis || e.Hash == "" || e.Timestamp.IsZero() {
		t.Errorf("chain fields not filled: %+v", e)
	}
}

func TestLogger_HashChain(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.log")

	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := logger.Log("list_reload", "allow", "user1", map[string]any{"list": "a", "keywords": 12}); err != nil {
		t.Fatal(err)
	}
	hash1 := logger.lastHash
	if err := logger.Log("filter", "deny", "user2", nil); err != nil {
		t.Fatal(err)
	}
	hash2 := logger.lastHash

	if hash1 == hash2 {
		t.Error("consecutive entries should have different hashes")
	}
	logger.Close()

	n, err := Verify(logPath)
	if err != nil {
		t.Fatalf("verify error: %v", err)
	}
	if n != 2 {
		t.Errorf("verified %d entries, want 2", n)
	}
}

func TestLogger_ResumesChain(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")

	first, err := NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Log("filter", "allow", "a", nil); err != nil {
		t.Fatal(err)
	}
	last := first.lastHash
	first.Close()

	second, err := NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	if second.lastHash != last {
		t.Errorf("reopened logger lastHash = %s, want %s", second.lastHash, last)
	}
	if err := second.Log("filter", "deny", "b", nil); err != nil {
		t.Fatal(err)
	}
	second.Close()

	if n, err := Verify(logPath); err != nil || n != 2 {
		t.Errorf("Verify() = %d, %v", n, err)
	}
}

func TestVerify_DetectsEditedEntry(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range []string{"allow", "deny", "review"} {
		if err := logger.Log("filter", d, "svc", nil); err != nil {
			t.Fatal(err)
		}
	}
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	// Rewrite the decision without touching any hash.
	edited := bytes.Replace(data, []byte(`"decision":"deny"`), []byte(`"decision":"allow"`), 1)
	if err := os.WriteFile(logPath, edited, 0600); err != nil {
		t.Fatal(err)
	}

	n, err := Verify(logPath)
	if !errors.Is(err, ErrTampered) {
		t.Fatalf("Verify() error = %v, want ErrTampered", err)
	}
	if n != 1 {
		t.Errorf("tamper reported at entry %d, want 1", n)
	}
	if !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("error = %v", err)
	}
}

func TestVerify_DetectsRemovedEntry(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	logger, err := NewLogger(logPath)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if err := logger.Log("filter", "allow", "svc", nil); err != nil {
			t.Fatal(err)
		}
	}
	logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.SplitAfter(string(data), "\n")
	if err := os.WriteFile(logPath, []byte(lines[0]+lines[2]), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(logPath); !errors.Is(err, ErrTampered) || !strings.Contains(err.Error(), "chain broken") {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestVerify_MissingFile(t *testing.T) {
	n, err := Verify(filepath.Join(t.TempDir(), "none.log"))
	if err != nil || n != 0 {
		t.Errorf("Verify() = %d, %v; want 0, nil", n, err)
	}
}

func TestReadAll_Malformed(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "audit.log")
	if err := os.WriteFile(logPath, []byte("{not json}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAll(logPath); err == nil {
		t.Error("expected parse error")
	}
}
