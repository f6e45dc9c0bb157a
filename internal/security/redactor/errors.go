package redactor

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrInvalidKeywordEncoding is returned when a keyword is not valid UTF-8.
var ErrInvalidKeywordEncoding = errors.New("invalid keyword encoding")

// KeywordError reports the offending entry of a keyword list.
type KeywordError struct {
	Index   int
	Keyword string
}

func (e *KeywordError) Error() string {
	return fmt.Sprintf("keyword %d (%q): %v", e.Index, e.Keyword, ErrInvalidKeywordEncoding)
}

func (e *KeywordError) Unwrap() error {
	return ErrInvalidKeywordEncoding
}

// ValidKeywords drops keywords that are not valid UTF-8 and returns how many
// were dropped. Hosts that prefer skipping bad entries over failing the build
// call this before BuildDictionary.
func ValidKeywords(keywords []string) ([]string, int) {
	kept := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if utf8.ValidString(k) {
			kept = append(kept, k)
		}
	}
	return kept, len(keywords) - len(kept)
}
