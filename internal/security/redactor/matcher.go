package redactor

import "sort"

// StateKind tags a candidate's match state.
type StateKind uint8

const (
	// InProgress: N text bytes consumed so far, pattern bytes remain.
	InProgress StateKind = iota
	// Dead: a byte mismatched or the text ran out. Permanent for the start offset.
	Dead
	// Accepted: the whole keyword matched, consuming N text bytes.
	Accepted
)

func (k StateKind) String() string {
	switch k {
	case InProgress:
		return "in_progress"
	case Dead:
		return "dead"
	case Accepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// State is the match state of one candidate keyword for one start offset.
type State struct {
	Kind StateKind
	N    int
}

// advance compares one pattern byte against the text. start+s.N is the
// text cursor. Whitespace in the pattern is a skip point when whitespace is
// ignored, and so is text whitespace once at least one byte has matched.
func (s State) advance(b byte, text string, start int, opts Options) State {
	if s.Kind != InProgress {
		return s
	}
	if opts.IgnoreWhitespace && isSpace(b) {
		return s
	}

	pos := start + s.N
	if opts.IgnoreWhitespace && s.N > 0 {
		for pos < len(text) && isSpace(text[pos]) {
			pos++
		}
	}
	if pos >= len(text) || !sameByte(text[pos], b, opts.CaseInsensitive) {
		return State{Kind: Dead}
	}
	return State{Kind: InProgress, N: pos + 1 - start}
}

// accept marks the pattern as exhausted. Zero-width acceptance (a keyword
// made only of skipped whitespace) is not a match.
func (s State) accept() State {
	if s.Kind != InProgress || s.N == 0 {
		return State{Kind: Dead}
	}
	return State{Kind: Accepted, N: s.N}
}

// Match is one accepted span of the text.
type Match struct {
	Start int    // byte offset of the first matched byte
	End   int    // byte offset one past the last consumed byte
	Text  string // text[Start:End] as it appears in the input
	// Keyword is the dictionary spelling that matched.
	Keyword string
}

type candidate struct {
	node  int32
	state State
}

// MatchLongest walks every keyword sharing a prefix with text[start:] at
// once and returns the one consuming the most text. On equal spans the
// lexicographically smallest keyword wins.
func (d *Dictionary) MatchLongest(text string, start int, opts Options) (Match, bool) {
	if d == nil || len(d.keywords) == 0 || start < 0 || start >= len(text) {
		return Match{}, false
	}

	best, bestEnd := int32(-1), start
	exact := !opts.IgnoreWhitespace && !opts.CaseInsensitive

	// Children are pushed in reverse so that pops follow ascending label
	// order, which makes discovery order the dictionary's sorted order.
	stack := make([]candidate, 1, 16)
	stack[0] = candidate{node: 0, state: State{Kind: InProgress}}
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &d.nodes[c.node]
		if n.keyword >= 0 {
			if acc := c.state.accept(); acc.Kind == Accepted && start+acc.N > bestEnd {
				best, bestEnd = n.keyword, start+acc.N
			}
		}
		if len(n.children) == 0 {
			continue
		}

		if exact {
			pos := start + c.state.N
			if pos >= len(text) {
				continue
			}
			if e, ok := findEdge(n.children, text[pos]); ok {
				stack = append(stack, candidate{node: e.next, state: State{Kind: InProgress, N: c.state.N + 1}})
			}
			continue
		}

		for i := len(n.children) - 1; i >= 0; i-- {
			e := n.children[i]
			next := c.state.advance(e.label, text, start, opts)
			if next.Kind == Dead {
				continue
			}
			stack = append(stack, candidate{node: e.next, state: next})
		}
	}

	if best < 0 {
		return Match{}, false
	}
	return Match{
		Start:   start,
		End:     bestEnd,
		Text:    text[start:bestEnd],
		Keyword: d.keywords[best],
	}, true
}

func findEdge(children []edge, b byte) (edge, bool) {
	i := sort.Search(len(children), func(i int) bool { return children[i].label >= b })
	if i < len(children) && children[i].label == b {
		return children[i], true
	}
	return edge{}, false
}

func sameByte(a, b byte, fold bool) bool {
	if a == b {
		return true
	}
	return fold && toLower(a) == toLower(b)
}

func toLower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

// isSpace matches ASCII whitespace: space, \t, \n, \f and \r.
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\f', '\r':
		return true
	}
	return false
}
