package feed

import (
	"strings"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/samber/lo"
)

// Matcher finds any of a set of patterns inside a text, ignoring case.
// A Matcher without patterns matches nothing.
type Matcher struct {
	machine *goahocorasick.Machine
}

// NewMatcher builds the Aho-Corasick automaton over the lowered patterns.
// Empty patterns are ignored.
func NewMatcher(patterns []string) (*Matcher, error) {
	words := lo.FilterMap(patterns, func(p string, _ int) ([]rune, bool) {
		lowered := strings.ToLower(p)
		return []rune(lowered), lowered != ""
	})
	if len(words) == 0 {
		return &Matcher{}, nil
	}
	m := new(goahocorasick.Machine)
	if err := m.Build(words); err != nil {
		return nil, err
	}
	return &Matcher{machine: m}, nil
}

func (m *Matcher) Match(text string) bool {
	if m == nil || m.machine == nil {
		return false
	}
	return len(m.machine.MultiPatternSearch([]rune(strings.ToLower(text)), true)) > 0
}
