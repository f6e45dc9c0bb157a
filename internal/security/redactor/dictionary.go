package redactor

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Dictionary is an immutable, deduplicated and lexicographically sorted set
// of keywords laid out as a byte trie. It is safe for concurrent use.
type Dictionary struct {
	keywords    []string
	nodes       []node
	fingerprint uint64
}

type node struct {
	children []edge // ascending by label
	keyword  int32  // index into keywords, -1 when no keyword ends here
}

type edge struct {
	label byte
	next  int32
}

// BuildDictionary deduplicates and sorts keywords and builds the trie.
// Empty keywords are dropped. A keyword that is not valid UTF-8 fails the
// whole build with a *KeywordError.
func BuildDictionary(keywords []string) (*Dictionary, error) {
	for i, k := range keywords {
		if !utf8.ValidString(k) {
			return nil, &KeywordError{Index: i, Keyword: k}
		}
	}
	list := normalize(keywords)

	d := &Dictionary{
		keywords: list,
		nodes:    []node{{keyword: -1}},
	}
	for i, k := range list {
		d.insert(k, int32(i))
	}
	d.fingerprint = fingerprint(list)
	return d, nil
}

// insert relies on keywords arriving in sorted order: a new child label is
// always greater than every existing label of its parent, so only the last
// child has to be checked.
func (d *Dictionary) insert(keyword string, id int32) {
	cur := int32(0)
	for i := 0; i < len(keyword); i++ {
		b := keyword[i]
		children := d.nodes[cur].children
		if n := len(children); n > 0 && children[n-1].label == b {
			cur = children[n-1].next
			continue
		}
		next := int32(len(d.nodes))
		d.nodes = append(d.nodes, node{keyword: -1})
		d.nodes[cur].children = append(d.nodes[cur].children, edge{label: b, next: next})
		cur = next
	}
	d.nodes[cur].keyword = id
}

// normalize returns a sorted, deduplicated copy without empty keywords.
func normalize(keywords []string) []string {
	list := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k != "" {
			list = append(list, k)
		}
	}
	sort.Strings(list)
	return slices.Compact(list)
}

// FingerprintOf returns the fingerprint BuildDictionary would assign to
// keywords, without building the trie.
func FingerprintOf(keywords []string) uint64 {
	return fingerprint(normalize(keywords))
}

func fingerprint(sorted []string) uint64 {
	h := xxhash.New()
	for _, k := range sorted {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Len returns the number of distinct keywords.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keywords)
}

// Keywords returns a copy of the sorted keyword set.
func (d *Dictionary) Keywords() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keywords)
}

// Fingerprint identifies the keyword set. Two dictionaries built from the
// same keywords in any order share a fingerprint.
func (d *Dictionary) Fingerprint() uint64 {
	if d == nil {
		return fingerprint(nil)
	}
	return d.fingerprint
}

// Contains reports whether keyword is in the dictionary exactly as spelled.
func (d *Dictionary) Contains(keyword string) bool {
	if d == nil {
		return false
	}
	_, ok := slices.BinarySearch(d.keywords, keyword)
	return ok
}

// Equal reports whether the dictionary holds exactly the keywords that
// BuildDictionary(keywords) would keep.
func (d *Dictionary) Equal(keywords []string) bool {
	if d == nil {
		return len(normalize(keywords)) == 0
	}
	return slices.Equal(d.keywords, normalize(keywords))
}

// WithPrefix returns the keywords starting with prefix, in sorted order.
func (d *Dictionary) WithPrefix(prefix string) []string {
	if d == nil {
		return nil
	}
	lo := sort.SearchStrings(d.keywords, prefix)
	hi := lo
	for hi < len(d.keywords) && strings.HasPrefix(d.keywords[hi], prefix) {
		hi++
	}
	return slices.Clone(d.keywords[lo:hi])
}
