// Package metadata derives advisory year and location fields from chunk text.
package metadata

import (
	"cmp"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Fields holds the metadata extracted from one chunk.
type Fields struct {
	Year     *int   // First 1800-2099 year in the text
	Location string // Canonical gazetteer spelling, "" if none
}

// DefaultGazetteer is used when no list is configured.
var DefaultGazetteer = []string{
	"Bendigo", "Ballarat", "Castlemaine", "Yea", "Beechworth", "Ararat",
	"Dunolly", "Maryborough", "Clunes", "Stawell", "Melbourne", "Victoria",
}

var yearPattern = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)

// Extractor finds years and gazetteer locations. It is immutable and safe for
// concurrent use.
type Extractor struct {
	location  *regexp.Regexp
	canonical map[string]string
}

// NewExtractor builds an Extractor for gazetteer. An empty list disables
// location extraction.
func NewExtractor(gazetteer []string) *Extractor {
	e := &Extractor{canonical: make(map[string]string, len(gazetteer))}

	names := make([]string, 0, len(gazetteer))
	for _, name := range gazetteer {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, dup := e.canonical[key]; dup {
			continue
		}
		e.canonical[key] = name
		names = append(names, regexp.QuoteMeta(name))
	}
	if len(names) == 0 {
		return e
	}

	// Longest first so "Victoria Park" beats "Victoria" at the same offset.
	slices.SortStableFunc(names, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	e.location = regexp.MustCompile(`(?i)\b(?:` + strings.Join(names, "|") + `)\b`)
	return e
}

var defaultExtractor = NewExtractor(DefaultGazetteer)

// Extract runs the default gazetteer over text.
func Extract(text string) Fields {
	return defaultExtractor.Extract(text)
}

// Extract returns the first year and the earliest gazetteer location in text.
func (e *Extractor) Extract(text string) Fields {
	var f Fields

	if m := yearPattern.FindString(text); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			f.Year = &y
		}
	}

	if e.location != nil {
		if m := e.location.FindString(text); m != "" {
			f.Location = e.canonical[strings.ToLower(m)]
		}
	}
	return f
}
