package output

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Hit is one search result as shown on the command line.
type Hit struct {
	Rank       int
	Similarity float64
	SourceFile string
	ChunkIndex int
	Year       *int
	Location   string
	Text       string
}

// snippetChars bounds the text shown per hit.
const snippetChars = 300

// SearchResults prints ranked hits, or a hint when there are none.
func (w *Writer) SearchResults(query string, hits []Hit) {
	if len(hits) == 0 {
		w.Warning("No results found. Index documents with `docsearch index` first.")
		return
	}
	w.Header(fmt.Sprintf("%d results for %q", len(hits), query))
	w.Newline()
	for _, h := range hits {
		w.println(fmt.Sprintf("%s %s %s",
			w.styles.Score.Render(fmt.Sprintf("%2d.", h.Rank)),
			w.styles.Value.Render(fmt.Sprintf("%s#%d", h.SourceFile, h.ChunkIndex)),
			w.styles.Label.Render(fmt.Sprintf("(similarity %.3f)", h.Similarity))))

		var meta []string
		if h.Year != nil {
			meta = append(meta, fmt.Sprintf("year %d", *h.Year))
		}
		if h.Location != "" {
			meta = append(meta, h.Location)
		}
		if len(meta) > 0 {
			w.println("    " + w.styles.Dim.Render(strings.Join(meta, " · ")))
		}
		w.println("    " + snippet(h.Text))
		w.Newline()
	}
}

// snippet collapses whitespace and truncates to snippetChars characters.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:snippetChars]) + "…"
}

// Failure is a file that could not be indexed.
type Failure struct {
	File   string
	Reason string
}

// IndexSummary reports the outcome of an index run.
type IndexSummary struct {
	Processed   int
	Skipped     int
	Removed     int
	ChunksAdded int
	TotalChunks int
	Failures    []Failure
	Root        string
}

// Summary prints an index run summary.
func (w *Writer) Summary(s IndexSummary) {
	if s.Processed == 0 && s.Skipped == 0 && s.Removed == 0 && len(s.Failures) == 0 {
		w.Warningf("No PDF or DOCX files found in %s", s.Root)
		return
	}
	w.Successf("Indexed %d files into %d chunks", s.Processed, s.ChunksAdded)
	if s.Skipped > 0 {
		w.Status("", fmt.Sprintf("Skipped %d unchanged files", s.Skipped))
	}
	if s.Removed > 0 {
		w.Status("", fmt.Sprintf("Removed %d deleted files", s.Removed))
	}
	w.Status("", fmt.Sprintf("Index now holds %d chunks", s.TotalChunks))
	if len(s.Failures) > 0 {
		w.Warningf("Failed %d files:", len(s.Failures))
		for _, f := range s.Failures {
			w.Status("", fmt.Sprintf("- %s: %s", f.File, f.Reason))
		}
	}
}
