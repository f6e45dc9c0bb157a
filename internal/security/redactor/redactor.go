// Package redactor masks dictionary keywords in text using a leftmost-longest
// scan over a shared-prefix keyword trie.
package redactor

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"unicode/utf8"
)

// DefaultMask replaces every character of a matched span.
const DefaultMask = '*'

// Options control how keywords are compared to the text.
type Options struct {
	// IgnoreWhitespace lets ASCII whitespace inside a keyword, and inside the
	// matched text, be skipped.
	IgnoreWhitespace bool `json:"ignore_whitespace" yaml:"ignore_whitespace"`
	// CaseInsensitive folds ASCII letters only.
	CaseInsensitive bool `json:"case_insensitive" yaml:"case_insensitive"`
	// Mask is written once per masked character. Zero means DefaultMask.
	Mask rune `json:"-" yaml:"-"`
}

func (o Options) mask() rune {
	if o.Mask == 0 || !utf8.ValidRune(o.Mask) {
		return DefaultMask
	}
	return o.Mask
}

// Matches scans text once, left to right by character. At every position
// not already covered by a match it takes the longest keyword starting there.
func (d *Dictionary) Matches(text string, opts Options) []Match {
	if text == "" || d.Len() == 0 {
		return nil
	}
	var matches []Match
	redactedThrough := 0
	for i := range text {
		if i < redactedThrough {
			continue
		}
		if m, ok := d.MatchLongest(text, i, opts); ok && m.End > redactedThrough {
			redactedThrough = m.End
			matches = append(matches, m)
		}
	}
	return matches
}

// Filter masks every span reported by Matches, one mask per character.
func (d *Dictionary) Filter(text string, opts Options) Result {
	res := Result{Keywords: []string{}}
	matches := d.Matches(text, opts)
	if len(matches) == 0 {
		res.Result = text
		return res
	}

	mask := opts.mask()
	var out strings.Builder
	out.Grow(len(text))

	last := 0
	for _, m := range matches {
		// Copy the original bytes so invalid sequences pass through untouched.
		out.WriteString(text[last:m.Start])
		for range utf8.RuneCountInString(m.Text) {
			out.WriteRune(mask)
		}
		res.Keywords = append(res.Keywords, m.Text)
		last = m.End
	}
	out.WriteString(text[last:])

	res.Result = out.String()
	return res
}

// FilterWords builds a throwaway dictionary and filters text with default
// options.
func FilterWords(text string, keywords []string) (Result, error) {
	d, err := BuildDictionary(keywords)
	if err != nil {
		return Result{}, err
	}
	return d.Filter(text, Options{}), nil
}

// Redactor holds the current dictionary and default options. Changing the
// keyword set builds a new dictionary and swaps it in; filters already in
// flight keep the dictionary they started with.
type Redactor struct {
	mu   sync.RWMutex
	dict *Dictionary
	opts Options
}

// New creates a Redactor over keywords with default options.
func New(keywords ...string) (*Redactor, error) {
	return NewWithOptions(Options{}, keywords...)
}

// NewWithOptions creates a Redactor with the given default options.
func NewWithOptions(opts Options, keywords ...string) (*Redactor, error) {
	d, err := BuildDictionary(keywords)
	if err != nil {
		return nil, err
	}
	return &Redactor{dict: d, opts: opts}, nil
}

// Add extends the keyword set.
func (r *Redactor) Add(keywords ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, err := BuildDictionary(append(r.dict.Keywords(), keywords...))
	if err != nil {
		return err
	}
	r.dict = d
	return nil
}

// Replace swaps in a dictionary built from keywords. On error the current
// dictionary stays in place.
func (r *Redactor) Replace(keywords []string) error {
	d, err := BuildDictionary(keywords)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.dict = d
	r.mu.Unlock()
	return nil
}

// Dictionary returns the dictionary currently in use.
func (r *Redactor) Dictionary() *Dictionary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dict
}

// Options returns the default options.
func (r *Redactor) Options() Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.opts
}

// Filter redacts text with the default options.
func (r *Redactor) Filter(text string) Result {
	return r.FilterWith(text, r.Options())
}

// FilterWith redacts text with explicit options.
func (r *Redactor) FilterWith(text string, opts Options) Result {
	return r.Dictionary().Filter(text, opts)
}

// Redact returns only the masked text.
func (r *Redactor) Redact(input string) string {
	return r.Filter(input).Result
}

// ErrWriterClosed is returned by writes after Close.
var ErrWriterClosed = errors.New("redacting writer closed")

// RedactingWriter collects everything written to it and writes the redacted
// text to the underlying writer on Close. Matching never sees a partial
// input, so keywords split across Write calls are still found.
type RedactingWriter struct {
	writer   io.Writer
	redactor *Redactor
	buf      bytes.Buffer
	keywords []string
	closed   bool
}

// NewRedactingWriter creates a new writer that scrubs output
func NewRedactingWriter(w io.Writer, r *Redactor) *RedactingWriter {
	return &RedactingWriter{
		writer:   w,
		redactor: r,
	}
}

func (w *RedactingWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrWriterClosed
	}
	return w.buf.Write(p)
}

// Close redacts the buffered input and flushes it. It does not close the
// underlying writer.
func (w *RedactingWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	res := w.redactor.Filter(w.buf.String())
	w.buf.Reset()
	w.keywords = res.Keywords

	_, err := io.WriteString(w.writer, res.Result)
	return err
}

// Keywords returns the spans redacted by Close.
func (w *RedactingWriter) Keywords() []string {
	return w.keywords
}
