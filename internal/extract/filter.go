package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinLineLength is the shortest line kept by the filter, in characters
const DefaultMinLineLength = 15

// DefaultSkipPhrases mark navigation and promotional lines
var DefaultSkipPhrases = []string{
	"menu", "search", "home", "about", "contact", "donate",
	"twitter", "facebook", "share", "embed", "download",
}

var (
	numericLinePattern = regexp.MustCompile(`^[\d\s\-–,\.%\(\)\[\]]+$`)
	blankRunPattern    = regexp.MustCompile(`\n\s*\n\s*\n+`)
	hspacePattern      = regexp.MustCompile(`[ \t]+`)
	citationPattern    = regexp.MustCompile(`\s*\[\d+\]\s*`)
)

// LineFilter drops boilerplate lines from extracted page text
type LineFilter struct {
	MinLength   int
	SkipPhrases []string
}

// NewLineFilter creates a filter with the default thresholds and phrases
func NewLineFilter() *LineFilter {
	return &LineFilter{
		MinLength:   DefaultMinLineLength,
		SkipPhrases: DefaultSkipPhrases,
	}
}

// Keep reports whether a single (already trimmed) line survives filtering
func (f *LineFilter) Keep(line string) bool {
	if line == "" || utf8.RuneCountInString(line) < f.MinLength {
		return false
	}

	lower := strings.ToLower(line)
	for _, phrase := range f.SkipPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}

	return !numericLinePattern.MatchString(line)
}

// Apply filters text line by line and normalizes whitespace and citation markers
func (f *LineFilter) Apply(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if f.Keep(line) {
			kept = append(kept, line)
		}
	}

	clean := strings.Join(kept, "\n\n")
	clean = blankRunPattern.ReplaceAllString(clean, "\n\n")
	clean = hspacePattern.ReplaceAllString(clean, " ")
	clean = citationPattern.ReplaceAllString(clean, " ")

	return strings.TrimSpace(clean)
}
