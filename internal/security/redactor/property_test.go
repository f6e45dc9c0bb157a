package redactor

import (
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

const propertyMask = '█'

var alphabet = []rune("abAB \t한글.")

func keywordGen() *rapid.Generator[[]string] {
	return rapid.SliceOfN(rapid.StringOfN(rapid.RuneFrom(alphabet), 1, 4, -1), 0, 8)
}

func textGen() *rapid.Generator[string] {
	return rapid.StringOfN(rapid.RuneFrom(alphabet), 0, 40, -1)
}

func optionsGen() *rapid.Generator[Options] {
	return rapid.Custom(func(t *rapid.T) Options {
		return Options{
			IgnoreWhitespace: rapid.Bool().Draw(t, "ignore_whitespace"),
			CaseInsensitive:  rapid.Bool().Draw(t, "case_insensitive"),
			Mask:             propertyMask,
		}
	})
}

func TestProperty_LengthInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keywords := keywordGen().Draw(t, "keywords")
		text := textGen().Draw(t, "text")
		opts := optionsGen().Draw(t, "opts")

		d, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}
		res := d.Filter(text, opts)
		if got, want := utf8.RuneCountInString(res.Result), utf8.RuneCountInString(text); got != want {
			t.Fatalf("result has %d characters, input has %d", got, want)
		}
	})
}

// Every character is either copied or masked, and the masked characters,
// read in order, spell out the reported keywords back to back. That rules
// out overlapping or reordered spans.
func TestProperty_SpansPartitionText(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keywords := keywordGen().Draw(t, "keywords")
		text := textGen().Draw(t, "text")
		opts := optionsGen().Draw(t, "opts")

		d, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}
		res := d.Filter(text, opts)

		in, out := []rune(text), []rune(res.Result)
		var masked strings.Builder
		for i := range in {
			if out[i] == propertyMask {
				masked.WriteRune(in[i])
			} else if out[i] != in[i] {
				t.Fatalf("character %d changed from %q to %q", i, in[i], out[i])
			}
		}
		if got, want := masked.String(), strings.Join(res.Keywords, ""); got != want {
			t.Fatalf("masked text %q does not match keywords %q", got, res.Keywords)
		}
		for _, k := range res.Keywords {
			if k == "" {
				t.Fatal("empty keyword reported")
			}
		}
	})
}

func TestProperty_OrderIndependence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keywords := keywordGen().Draw(t, "keywords")
		shuffled := rapid.Permutation(keywords).Draw(t, "shuffled")
		text := textGen().Draw(t, "text")
		opts := optionsGen().Draw(t, "opts")

		a, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}
		b, err := BuildDictionary(shuffled)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}

		ra, rb := a.Filter(text, opts), b.Filter(text, opts)
		if ra.Result != rb.Result || strings.Join(ra.Keywords, "\x00") != strings.Join(rb.Keywords, "\x00") {
			t.Fatalf("results differ: %q %q vs %q %q", ra.Result, ra.Keywords, rb.Result, rb.Keywords)
		}
		if a.Fingerprint() != b.Fingerprint() {
			t.Fatal("fingerprints differ")
		}
	})
}

func TestProperty_NoSubstringNoChange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keywords := keywordGen().Draw(t, "keywords")
		text := textGen().Draw(t, "text")

		for _, k := range keywords {
			if strings.Contains(text, k) {
				return
			}
		}
		d, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}
		res := d.Filter(text, Options{})
		if res.Result != text || len(res.Keywords) != 0 {
			t.Fatalf("got %q %q, want the input unchanged", res.Result, res.Keywords)
		}
	})
}

func TestProperty_ExactMatchesAreDictionaryWords(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		keywords := keywordGen().Draw(t, "keywords")
		text := textGen().Draw(t, "text")

		d, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary: %v", err)
		}
		for _, k := range d.Filter(text, Options{}).Keywords {
			if !d.Contains(k) {
				t.Fatalf("reported %q which is not in the dictionary", k)
			}
		}
	})
}
