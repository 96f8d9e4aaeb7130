package feed

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatcher_Match(t *testing.T) {
	req := require.New(t)
	m, err := NewMatcher([]string{"Campus", "exam"})
	req.NoError(err)

	tests := []struct {
		name  string
		text  string
		match bool
	}{
		{"exact word", "The campus is open", true},
		{"uppercase text", "FINAL EXAMS START MONDAY", true},
		{"substring inside a word", "Megacampusland", true},
		{"no pattern", "Nothing to see here", false},
		{"empty text", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.match, m.Match(tt.text), "text=%s", tt.text)
		})
	}
}

func TestMatcher_WithoutPatterns(t *testing.T) {
	req := require.New(t)
	m, err := NewMatcher([]string{"", ""})
	req.NoError(err)
	req.False(m.Match("anything"))

	var nilMatcher *Matcher
	req.False(nilMatcher.Match("anything"))
}
