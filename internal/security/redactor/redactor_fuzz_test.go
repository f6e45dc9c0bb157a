package redactor

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func FuzzFilter(f *testing.F) {
	f.Add("foo bazbaz bar foof bar", "foo,bar,foofo,한글", false, false)
	f.Add("foo  B a\tr", "foo,bar", true, true)
	f.Add("\xff\xfe한", "한,\xff", false, true)
	f.Add("", "", true, false)

	f.Fuzz(func(t *testing.T, text, list string, ignoreWhitespace, caseInsensitive bool) {
		keywords, _ := ValidKeywords(strings.Split(list, ","))
		d, err := BuildDictionary(keywords)
		if err != nil {
			t.Fatalf("BuildDictionary after ValidKeywords: %v", err)
		}

		res := d.Filter(text, Options{IgnoreWhitespace: ignoreWhitespace, CaseInsensitive: caseInsensitive})
		if utf8.RuneCountInString(res.Result) != utf8.RuneCountInString(text) {
			t.Fatalf("length changed: %q -> %q", text, res.Result)
		}
		for _, k := range res.Keywords {
			if k == "" || !strings.Contains(text, k) {
				t.Fatalf("keyword %q is not a span of the input", k)
			}
		}
	})
}
