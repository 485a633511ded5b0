package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// previewChars is the longest chunk text shown per search result.
const previewChars = 500

// noResultsText is returned for a search with no hits.
const noResultsText = "No results found. Make sure documents are indexed using the 'index_documents' tool."

// FormatSearchResults renders ranked chunks as plain text.
func FormatSearchResults(results []store.Result) string {
	if len(results) == 0 {
		return noResultsText
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d relevant chunks:\n\n", len(results))
	for i := range results {
		r := &results[i]
		fmt.Fprintf(&sb, "--- Result %d (similarity: %.3f) ---\n", i+1, r.Similarity)
		fmt.Fprintf(&sb, "Source: %s\n", orUnknown(r.SourceFile))
		if r.DateYear != nil {
			fmt.Fprintf(&sb, "Year: %d\n", *r.DateYear)
		}
		if r.Location != "" {
			fmt.Fprintf(&sb, "Location: %s\n", r.Location)
		}
		fmt.Fprintf(&sb, "Text: %s\n\n", preview(r.Text))
	}
	return sb.String()
}

// FormatIndexSummary renders the outcome of an index run.
func FormatIndexSummary(sum *docstore.Summary, totalChunks int, root string) string {
	files := sum.FilesProcessed + sum.FilesSkipped + len(sum.Failures)
	if files == 0 && sum.FilesRemoved == 0 {
		return fmt.Sprintf("No PDF or DOCX files found in %s", root)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Indexed %d files into %d chunks", sum.FilesProcessed, totalChunks)
	if sum.FilesSkipped > 0 {
		fmt.Fprintf(&sb, "\nSkipped %d unchanged files", sum.FilesSkipped)
	}
	if sum.FilesRemoved > 0 {
		fmt.Fprintf(&sb, "\nRemoved %d deleted files", sum.FilesRemoved)
	}
	if len(sum.Failures) > 0 {
		fmt.Fprintf(&sb, "\n\nFailed %d files:", len(sum.Failures))
		for _, f := range sum.Failures {
			fmt.Fprintf(&sb, "\n- %s: %s", f.File, f.Reason)
		}
	}
	return sb.String()
}

// FormatStats renders statistics as indented JSON.
func FormatStats(out StatsOutput) string {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", out)
	}
	return string(data)
}

// toSearchOutput converts results for structured content.
func toSearchOutput(query string, results []store.Result) SearchOutput {
	out := SearchOutput{Query: query, Results: make([]SearchResultOutput, 0, len(results))}
	for i := range results {
		r := &results[i]
		out.Results = append(out.Results, SearchResultOutput{
			Rank:       i + 1,
			Similarity: r.Similarity,
			SourceFile: r.SourceFile,
			FileType:   string(r.FileType),
			MIMEType:   mimeTypeForFileType(r.FileType, r.SourceFile),
			ChunkIndex: r.ChunkIndex,
			DateYear:   r.DateYear,
			Location:   r.Location,
			Text:       r.Text,
		})
	}
	return out
}

// preview truncates text to previewChars characters, appending "..." when cut.
func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewChars]) + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
