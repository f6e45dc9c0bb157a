package wordlist

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/mackeh/aegismask/internal/secrets"
	"github.com/mackeh/aegismask/internal/security/redactor"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Formats(t *testing.T) {
	want := []string{"foo", "bar", "한글"}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"text", "list.txt", "# comment\nfoo\r\n\nbar\n한글\n"},
		{"lst", "list.lst", "foo\nbar\n한글"},
		{"json_array", "list.json", `["foo", "bar", "한글"]`},
		{"json_object", "list.json", `{"keywords": ["foo", "bar", "한글"]}`},
		{"json_badwordlist", "list.json", `{"data": {"badWordList": ["foo", "bar", "한글"]}}`},
		{"yaml_sequence", "list.yaml", "- foo\n- bar\n- 한글\n"},
		{"yaml_mapping", "list.yml", "keywords:\n  - foo\n  - bar\n  - 한글\n"},
		{"toml", "list.toml", "keywords = [\"foo\", \"bar\", \"한글\"]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), tt.file, tt.content)
			l, err := Load(path, LoadOptions{})
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if !reflect.DeepEqual(l.Keywords, want) {
				t.Errorf("Keywords = %q, want %q", l.Keywords, want)
			}
			if l.Path != path || l.Size == 0 {
				t.Errorf("file metadata missing: %+v", l)
			}
		})
	}
}

func TestLoad_FormatOverride(t *testing.T) {
	path := writeFile(t, t.TempDir(), "words", `["a"]`)
	if _, err := Load(path, LoadOptions{}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat without extension, got %v", err)
	}
	l, err := Load(path, LoadOptions{Format: "json"})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if l.Format != FormatJSON || len(l.Keywords) != 1 {
		t.Errorf("list = %+v", l)
	}
	if _, err := Load(path, LoadOptions{Format: "xml"}); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat for xml, got %v", err)
	}
}

func TestParse_NonStringEntries(t *testing.T) {
	doc := []byte(`["foo", 1, null, {"x": 1}, "bar", true]`)

	l, err := Parse(doc, FormatJSON, false)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if !reflect.DeepEqual(l.Keywords, []string{"foo", "bar"}) {
		t.Errorf("Keywords = %q", l.Keywords)
	}
	if l.Skipped != 4 {
		t.Errorf("Skipped = %d, want 4", l.Skipped)
	}

	if _, err := Parse(doc, FormatJSON, true); !errors.Is(err, ErrNonStringEntry) {
		t.Errorf("strict Parse() error = %v, want ErrNonStringEntry", err)
	}
}

func TestParse_InvalidUTF8Text(t *testing.T) {
	doc := []byte("good\n\xff\xfe\nalso good\n")

	l, err := Parse(doc, FormatText, false)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if l.Invalid != 1 || len(l.Keywords) != 2 {
		t.Errorf("list = %+v", l)
	}

	_, err = Parse(doc, FormatText, true)
	var kerr *redactor.KeywordError
	if !errors.As(err, &kerr) {
		t.Fatalf("strict Parse() error = %v, want *KeywordError", err)
	}
	if kerr.Index != 2 {
		t.Errorf("KeywordError.Index = %d, want line 2", kerr.Index)
	}
	if !errors.Is(err, redactor.ErrInvalidKeywordEncoding) {
		t.Error("error does not wrap ErrInvalidKeywordEncoding")
	}
}

func TestParse_NoKeywordArray(t *testing.T) {
	tests := []struct {
		format Format
		doc    string
	}{
		{FormatJSON, `{"words": ["a"]}`},
		{FormatJSON, `"just a string"`},
		{FormatYAML, "name: x\n"},
		{FormatTOML, "name = \"x\"\n"},
	}
	for _, tt := range tests {
		if _, err := Parse([]byte(tt.doc), tt.format, false); !errors.Is(err, ErrNoKeywords) {
			t.Errorf("Parse(%s, %q) error = %v, want ErrNoKeywords", tt.format, tt.doc, err)
		}
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`["a",`), FormatJSON, false); err == nil {
		t.Error("expected JSON syntax error")
	}
	if _, err := Parse([]byte("keywords = ["), FormatTOML, false); err == nil {
		t.Error("expected TOML syntax error")
	}
}

func TestList_Dictionary(t *testing.T) {
	l := &List{Keywords: []string{"b", "a", "b"}}
	d, err := l.Dictionary()
	if err != nil {
		t.Fatalf("Dictionary() error: %v", err)
	}
	if !reflect.DeepEqual(d.Keywords(), []string{"a", "b"}) {
		t.Errorf("Keywords = %q", d.Keywords())
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path   string
		format Format
		sealed bool
	}{
		{"/x/list.txt", FormatText, false},
		{"/x/list.JSON", FormatJSON, false},
		{"/x/list.yaml.age", FormatYAML, true},
		{"list.txt.age", FormatText, true},
	}
	for _, tt := range tests {
		f, sealed, err := DetectFormat(tt.path)
		if err != nil {
			t.Errorf("DetectFormat(%q) error: %v", tt.path, err)
			continue
		}
		if f != tt.format || sealed != tt.sealed {
			t.Errorf("DetectFormat(%q) = %s, %v", tt.path, f, sealed)
		}
	}
}

func TestLoad_Sealed(t *testing.T) {
	dir := t.TempDir()
	mgr := secrets.NewManager(filepath.Join(dir, "secrets"))
	if _, err := mgr.Init(); err != nil {
		t.Fatal(err)
	}

	plain := writeFile(t, dir, "list.yaml", "- alpha\n- beta\n")
	sealed := plain + ".age"
	if err := mgr.SealFile(plain, sealed, false); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(sealed, LoadOptions{}); !errors.Is(err, ErrSealed) {
		t.Errorf("Load() without decrypter error = %v, want ErrSealed", err)
	}

	l, err := Load(sealed, LoadOptions{Decrypter: mgr})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !l.Sealed || l.Format != FormatYAML {
		t.Errorf("list = %+v", l)
	}
	if !reflect.DeepEqual(l.Keywords, []string{"alpha", "beta"}) {
		t.Errorf("Keywords = %q", l.Keywords)
	}
}

func TestFromValues(t *testing.T) {
	l, err := FromValues([]any{"a", 2.5, "b", nil}, false)
	if err != nil {
		t.Fatalf("FromValues() error: %v", err)
	}
	if !reflect.DeepEqual(l.Keywords, []string{"a", "b"}) || l.Skipped != 2 {
		t.Errorf("list = %+v", l)
	}
	if _, err := FromValues([]any{"a", false}, true); !errors.Is(err, ErrNonStringEntry) {
		t.Errorf("strict error = %v", err)
	}
}
