package realm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Kind says which input a matcher is tested against.
type Kind uint8

const (
	TriggerKind Kind = iota
	AliasKind
)

func (k Kind) String() string {
	if k == AliasKind {
		return "Alias"
	}
	return "Trigger"
}

// MatchTimeout bounds a single pattern evaluation.
const MatchTimeout = 250 * time.Millisecond

type Handler func(m *Match, c *Context) error

// Matcher is a trigger or an alias: one or more patterns, a handler and a
// sequence. Lower sequences run first.
type Matcher struct {
	Kind     Kind
	Name     string
	Sequence int
	Handler  Handler

	patterns []*regexp2.Regexp
}

// NewMatcher compiles patterns. Each pattern is tested independently, and
// every one that matches yields one call of h.
func NewMatcher(kind Kind, name string, seq int, h Handler, patterns ...string) (*Matcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("%s %q: no patterns", kind, name)
	}
	m := &Matcher{Kind: kind, Name: name, Sequence: seq, Handler: h}
	for _, p := range patterns {
		re, err := regexp2.Compile(p, regexp2.None)
		if err != nil {
			return nil, fmt.Errorf("%s %q: compile %q: %w", kind, name, p, err)
		}
		re.MatchTimeout = MatchTimeout
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func Trigger(name string, seq int, h Handler, patterns ...string) (*Matcher, error) {
	return NewMatcher(TriggerKind, name, seq, h, patterns...)
}

func Alias(name string, seq int, h Handler, patterns ...string) (*Matcher, error) {
	return NewMatcher(AliasKind, name, seq, h, patterns...)
}

// MustMatcher is NewMatcher that panics on a bad pattern.
func MustMatcher(kind Kind, name string, seq int, h Handler, patterns ...string) *Matcher {
	m, err := NewMatcher(kind, name, seq, h, patterns...)
	if err != nil {
		panic(err)
	}
	return m
}

// Matches tests every pattern against input.
func (m *Matcher) Matches(input string) ([]*Match, error) {
	var out []*Match
	for _, re := range m.patterns {
		rm, err := re.FindStringMatch(input)
		if err != nil {
			return out, fmt.Errorf("%s: %w", m, err)
		}
		if rm != nil {
			out = append(out, &Match{Input: input, m: rm})
		}
	}
	return out, nil
}

// Patterns returns the source patterns.
func (m *Matcher) Patterns() []string {
	out := make([]string, len(m.patterns))
	for i, re := range m.patterns {
		out[i] = re.String()
	}
	return out
}

func (m *Matcher) String() string {
	parts := []string{m.Kind.String()}
	switch len(m.patterns) {
	case 0:
		parts = append(parts, "(inactive)")
	case 1:
		parts = append(parts, fmt.Sprintf("'%s'", m.patterns[0].String()))
	default:
		qs := make([]string, len(m.patterns))
		for i, re := range m.patterns {
			qs[i] = fmt.Sprintf("'%s'", re.String())
		}
		parts = append(parts, "["+strings.Join(qs, ", ")+"]")
	}
	if m.Name != "" {
		parts = append(parts, m.Name)
	}
	if m.Sequence != 0 {
		parts = append(parts, fmt.Sprintf("sequence = %d", m.Sequence))
	}
	return "<" + strings.Join(parts, " ") + ">"
}

// Match is one successful pattern evaluation.
type Match struct {
	Input string
	m     *regexp2.Match
}

// Text is the matched substring.
func (m *Match) Text() string { return m.m.String() }

// Index is the rune offset of the match in Input.
func (m *Match) Index() int { return m.m.Index }

// Group returns capture group i, or "" if it did not participate.
func (m *Match) Group(i int) string {
	g := m.m.GroupByNumber(i)
	if g == nil || len(g.Captures) == 0 {
		return ""
	}
	return g.String()
}

// Named returns the named capture group, or "".
func (m *Match) Named(name string) string {
	g := m.m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return ""
	}
	return g.String()
}

// Groups returns groups 1..n.
func (m *Match) Groups() []string {
	n := m.m.GroupCount()
	out := make([]string, 0, n)
	for i := 1; i < n; i++ {
		out = append(out, m.Group(i))
	}
	return out
}

func sortMatchers(ms []*Matcher) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Sequence < ms[j].Sequence })
}
