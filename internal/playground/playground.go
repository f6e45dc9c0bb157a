// Package playground is an interactive terminal UI that redacts text as it
// is typed and shows the policy decision for it.
package playground

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mackeh/aegismask/internal/policy"
	"github.com/mackeh/aegismask/internal/security/redactor"
)

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	maskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF8700")).
			Bold(true)

	keywordStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	denyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	reviewStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFF00"))

	allowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// Options configures the playground.
type Options struct {
	List       string
	Dictionary *redactor.Dictionary
	Filter     redactor.Options
	// Policy is optional; without it every text is allowed.
	Policy     *policy.Engine
	Thresholds policy.Thresholds
}

// Model is the bubbletea model of the playground.
type Model struct {
	opts     Options
	filter   redactor.Options
	input    textinput.Model
	matches  []redactor.Match
	decision policy.Decision
	err      error
	Quitting bool
}

// NewModel creates a focused playground model.
func NewModel(opts Options) Model {
	ti := textinput.New()
	ti.Placeholder = "type some text"
	ti.Prompt = "> "
	ti.CharLimit = 4096
	ti.Focus()

	return Model{
		opts:   opts,
		filter: opts.Filter,
		input:  ti,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.Quitting = true
			return m, tea.Quit
		case "ctrl+w":
			m.filter.IgnoreWhitespace = !m.filter.IgnoreWhitespace
			return m.refresh(), nil
		case "ctrl+f":
			m.filter.CaseInsensitive = !m.filter.CaseInsensitive
			return m.refresh(), nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m.refresh(), cmd
}

// refresh re-runs the matcher and the policy on the current input.
func (m Model) refresh() Model {
	text := m.input.Value()
	m.matches = m.opts.Dictionary.Matches(text, m.filter)
	m.decision, m.err = policy.Allow, nil
	if m.opts.Policy == nil {
		return m
	}

	distinct := make(map[string]struct{}, len(m.matches))
	for _, mt := range m.matches {
		distinct[mt.Text] = struct{}{}
	}
	m.decision, m.err = m.opts.Policy.Evaluate(context.Background(), policy.Input{
		List:       m.opts.List,
		MatchCount: len(m.matches),
		Distinct:   len(distinct),
		TextLength: utf8.RuneCountInString(text),
		Actor:      "playground",
		Thresholds: m.opts.Thresholds,
	})
	return m
}

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	var s strings.Builder

	name := m.opts.List
	if name == "" {
		name = "ad-hoc"
	}
	fmt.Fprintf(&s, "\n%s %s\n\n", titleStyle.Render(" AEGISMASK PLAYGROUND "),
		subtleStyle.Render(fmt.Sprintf("%s · %d keywords", name, m.opts.Dictionary.Len())))

	s.WriteString("  " + m.input.View() + "\n\n")
	s.WriteString("  " + m.redacted() + "\n\n")

	if len(m.matches) > 0 {
		spans := make([]string, len(m.matches))
		for i, mt := range m.matches {
			spans[i] = keywordStyle.Render(fmt.Sprintf("%q", mt.Text))
		}
		fmt.Fprintf(&s, "  matched: %s\n", strings.Join(spans, " "))
	}
	fmt.Fprintf(&s, "  decision: %s\n", renderDecision(m.decision))
	if m.err != nil {
		fmt.Fprintf(&s, "  %s\n", denyStyle.Render("policy error: "+m.err.Error()))
	}

	fmt.Fprintf(&s, "\n  %s %s   %s %s\n",
		toggle(m.filter.IgnoreWhitespace), "ignore whitespace (ctrl+w)",
		toggle(m.filter.CaseInsensitive), "case insensitive (ctrl+f)")
	s.WriteString(subtleStyle.Render("  esc to quit") + "\n\n")
	return s.String()
}

// redacted renders the input with every match masked and highlighted.
func (m Model) redacted() string {
	text := m.input.Value()
	mask := string(m.mask())

	var out strings.Builder
	last := 0
	for _, mt := range m.matches {
		out.WriteString(text[last:mt.Start])
		out.WriteString(maskStyle.Render(strings.Repeat(mask, utf8.RuneCountInString(mt.Text))))
		last = mt.End
	}
	out.WriteString(text[last:])
	return out.String()
}

func (m Model) mask() rune {
	if m.filter.Mask == 0 || !utf8.ValidRune(m.filter.Mask) {
		return redactor.DefaultMask
	}
	return m.filter.Mask
}

func renderDecision(d policy.Decision) string {
	switch d {
	case policy.Deny:
		return denyStyle.Render("DENY")
	case policy.Review:
		return reviewStyle.Render("REVIEW")
	default:
		return allowStyle.Render("ALLOW")
	}
}

func toggle(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}

// Run starts the playground on the terminal.
func Run(opts Options) error {
	_, err := tea.NewProgram(NewModel(opts)).Run()
	return err
}
