// Package wordlist loads keyword lists from text, JSON, YAML, TOML and
// age-sealed files.
package wordlist

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/mackeh/aegismask/internal/security/redactor"
)

// Format identifies a list encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	// ErrUnknownFormat is returned for unrecognised extensions or format names.
	ErrUnknownFormat = errors.New("unknown list format")
	// ErrNonStringEntry is returned in strict mode for numbers, objects and the like.
	ErrNonStringEntry = errors.New("non-string list entry")
	// ErrNoKeywords is returned when a structured document has no keyword array.
	ErrNoKeywords = errors.New("no keyword array found")
	// ErrSealed is returned for .age files when no Decrypter is configured.
	ErrSealed = errors.New("list is sealed and no decrypter is configured")
)

// Decrypter opens age-sealed files. *secrets.Manager implements it.
type Decrypter interface {
	OpenFile(path string) ([]byte, error)
}

// LoadOptions controls parsing.
type LoadOptions struct {
	// Format overrides extension detection.
	Format string
	// Strict rejects non-string and invalid UTF-8 entries instead of
	// skipping them.
	Strict    bool
	Decrypter Decrypter
}

// List is a parsed keyword list. Keywords keeps file order and duplicates;
// the dictionary build deduplicates.
type List struct {
	Path     string    `json:"path,omitempty"`
	Format   Format    `json:"format"`
	Sealed   bool      `json:"sealed,omitempty"`
	Keywords []string  `json:"keywords"`
	Skipped  int       `json:"skipped"` // non-string entries
	Invalid  int       `json:"invalid"` // invalid UTF-8 entries
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Dictionary builds the matcher for the list.
func (l *List) Dictionary() (*redactor.Dictionary, error) {
	return redactor.BuildDictionary(l.Keywords)
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "text", "txt", "lst":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat derives the format from the file name. A trailing .age is
// stripped first and reported as sealed.
func DetectFormat(path string) (Format, bool, error) {
	name := filepath.Base(path)
	sealed := strings.HasSuffix(name, ".age")
	if sealed {
		name = strings.TrimSuffix(name, ".age")
	}
	ext := filepath.Ext(name)
	if ext == "" {
		return "", sealed, fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	f, err := ParseFormat(ext)
	return f, sealed, err
}

// Load reads and parses the list at path.
func Load(path string, opts LoadOptions) (*List, error) {
	format, sealed, detectErr := DetectFormat(path)
	if opts.Format != "" {
		f, err := ParseFormat(opts.Format)
		if err != nil {
			return nil, err
		}
		format, detectErr = f, nil
	}
	if detectErr != nil {
		return nil, detectErr
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat list: %w", err)
	}

	var data []byte
	if sealed {
		if opts.Decrypter == nil {
			return nil, fmt.Errorf("%w: %s", ErrSealed, path)
		}
		data, err = opts.Decrypter.OpenFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read list %s: %w", path, err)
	}

	l, err := Parse(data, format, opts.Strict)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	l.Path = path
	l.Sealed = sealed
	l.Size = info.Size()
	l.ModTime = info.ModTime()
	return l, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format, strict bool) (*List, error) {
	if format == FormatText {
		return parseText(data, strict)
	}

	var doc any
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		var m map[string]any
		_, err = toml.Decode(string(data), &m)
		doc = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s list: %w", format, err)
	}

	entries, ok := keywordArray(doc)
	if !ok {
		return nil, ErrNoKeywords
	}
	l, err := FromValues(entries, strict)
	if err != nil {
		return nil, err
	}
	l.Format = format
	return l, nil
}

// FromValues keeps the string entries of a decoded array. Other values
// and invalid UTF-8 strings are counted, or rejected when strict.
func FromValues(entries []any, strict bool) (*List, error) {
	l := &List{Keywords: make([]string, 0, len(entries))}
	for i, e := range entries {
		s, ok := e.(string)
		if !ok {
			if strict {
				return nil, fmt.Errorf("%w at index %d: %v", ErrNonStringEntry, i, e)
			}
			l.Skipped++
			continue
		}
		if err := l.add(s, i, strict); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// keywordArray accepts a bare array, {"keywords": [...]} or
// {"data": {"badWordList": [...]}}.
func keywordArray(doc any) ([]any, bool) {
	switch v := doc.(type) {
	case []any:
		return v, true
	case map[string]any:
		if kw, ok := v["keywords"].([]any); ok {
			return kw, true
		}
		if data, ok := v["data"].(map[string]any); ok {
			if kw, ok := data["badWordList"].([]any); ok {
				return kw, true
			}
		}
	}
	return nil, false
}

func parseText(data []byte, strict bool) (*List, error) {
	l := &List{Format: FormatText, Keywords: []string{}}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSuffix(sc.Text(), "\r")
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if err := l.add(s, line, strict); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read text list: %w", err)
	}
	return l, nil
}

func (l *List) add(s string, pos int, strict bool) error {
	if !utf8.ValidString(s) {
		if strict {
			return &redactor.KeywordError{Index: pos, Keyword: s}
		}
		l.Invalid++
		return nil
	}
	l.Keywords = append(l.Keywords, s)
	return nil
}
