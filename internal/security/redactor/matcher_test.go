package redactor

import "testing"

func TestMatchLongest(t *testing.T) {
	d := mustDictionary(t, basicKeys...)

	tests := []struct {
		name    string
		text    string
		start   int
		opts    Options
		ok      bool
		end     int
		keyword string
	}{
		{"longest", "foofo bazbaz", 0, Options{}, true, 5, "foofo"},
		{"shorter_when_longer_fails", "foof", 0, Options{}, true, 3, "foo"},
		{"mid_text", "xx bar", 3, Options{}, true, 6, "bar"},
		{"no_match", "baz", 0, Options{}, false, 0, ""},
		{"out_of_range", "foo", 3, Options{}, false, 0, ""},
		{"negative_start", "foo", -1, Options{}, false, 0, ""},
		{"unicode", "x한글", 1, Options{}, true, 7, "한글"},
		{"skip_interior_whitespace", "B a\tr!", 0, Options{IgnoreWhitespace: true, CaseInsensitive: true}, true, 5, "bar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := d.MatchLongest(tt.text, tt.start, tt.opts)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if m.Start != tt.start || m.End != tt.end {
				t.Errorf("span = [%d,%d), want [%d,%d)", m.Start, m.End, tt.start, tt.end)
			}
			if m.Keyword != tt.keyword {
				t.Errorf("Keyword = %q, want %q", m.Keyword, tt.keyword)
			}
			if m.Text != tt.text[m.Start:m.End] {
				t.Errorf("Text = %q, want literal slice %q", m.Text, tt.text[m.Start:m.End])
			}
		})
	}
}

func TestMatches(t *testing.T) {
	d := mustDictionary(t, basicKeys...)

	got := d.Matches("foo bazbaz foofo 한글", Options{})
	want := []Match{
		{Start: 0, End: 3, Text: "foo", Keyword: "foo"},
		{Start: 11, End: 16, Text: "foofo", Keyword: "foofo"},
		{Start: 17, End: 23, Text: "한글", Keyword: "한글"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d matches, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("match %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if m := d.Matches("", Options{}); m != nil {
		t.Errorf("Matches(\"\") = %+v, want nil", m)
	}
}

func TestMatchLongest_TieKeepsSortedFirst(t *testing.T) {
	d := mustDictionary(t, "foo", "FOO", "Foo")

	m, ok := d.MatchLongest("fOO", 0, Options{CaseInsensitive: true})
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Keyword != "FOO" {
		t.Errorf("Keyword = %q, want %q (first in sorted order)", m.Keyword, "FOO")
	}
	if m.Text != "fOO" {
		t.Errorf("Text = %q, want the literal text", m.Text)
	}
}

func TestMatchLongest_WhitespaceTie(t *testing.T) {
	// "a b" and "ab" consume the same text when whitespace is ignored.
	d := mustDictionary(t, "ab", "a b")

	m, ok := d.MatchLongest("a b", 0, Options{IgnoreWhitespace: true})
	if !ok {
		t.Fatal("expected a match")
	}
	if m.End != 3 {
		t.Errorf("End = %d, want 3", m.End)
	}
	if m.Keyword != "a b" {
		t.Errorf("Keyword = %q, want %q", m.Keyword, "a b")
	}
}

func TestMatchLongest_WhitespaceOnlyKeyword(t *testing.T) {
	d := mustDictionary(t, " \t ")

	if _, ok := d.MatchLongest("x", 0, Options{IgnoreWhitespace: true}); ok {
		t.Error("a keyword made only of skipped whitespace must not match")
	}
	m, ok := d.MatchLongest(" \t x", 0, Options{})
	if !ok || m.End != 3 {
		t.Errorf("literal whitespace keyword: ok=%v end=%d", ok, m.End)
	}
}

func TestState_Transitions(t *testing.T) {
	opts := Options{CaseInsensitive: true}
	s := State{Kind: InProgress}

	s = s.advance('a', "Ab", 0, opts)
	if s.Kind != InProgress || s.N != 1 {
		t.Fatalf("after 'a': %v/%d", s.Kind, s.N)
	}
	if acc := s.accept(); acc.Kind != Accepted || acc.N != 1 {
		t.Errorf("accept() = %v/%d, want accepted/1", acc.Kind, acc.N)
	}

	dead := s.advance('x', "Ab", 0, opts)
	if dead.Kind != Dead {
		t.Fatalf("mismatch should be dead, got %v", dead.Kind)
	}
	if again := dead.advance('b', "Ab", 0, opts); again.Kind != Dead {
		t.Error("dead is permanent")
	}
	if acc := dead.accept(); acc.Kind != Dead {
		t.Error("dead cannot be accepted")
	}
	if acc := (State{Kind: InProgress}).accept(); acc.Kind != Dead {
		t.Error("zero-width acceptance must be rejected")
	}

	if end := s.advance('b', "Ab", 0, opts).advance('c', "Ab", 0, opts); end.Kind != Dead {
		t.Error("running out of text must be dead")
	}
}

func TestStateKind_String(t *testing.T) {
	for k, want := range map[StateKind]string{InProgress: "in_progress", Dead: "dead", Accepted: "accepted", StateKind(9): "unknown"} {
		if k.String() != want {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), want)
		}
	}
}
