package mcp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/store"
)

func intPtr(v int) *int { return &v }

func result(source, text string, sim float64, year *int, location string) store.Result {
	return store.Result{
		Record: store.Record{
			Text:       text,
			SourceFile: source,
			FileType:   chunk.FileTypePDF,
			DateYear:   year,
			Location:   location,
		},
		Similarity: sim,
	}
}

func TestFormatSearchResults_Empty(t *testing.T) {
	assert.Equal(t,
		"No results found. Make sure documents are indexed using the 'index_documents' tool.",
		FormatSearchResults(nil))
}

func TestFormatSearchResults_Layout(t *testing.T) {
	// Given: two hits, one with metadata
	results := []store.Result{
		result("claims/deadwood.pdf", "gold nuggets near the creek", 0.91234, intPtr(1852), "Deadwood"),
		result("notes.docx", "a survey of the valley", 0.5, nil, ""),
	}

	// When: rendering
	out := FormatSearchResults(results)

	// Then: the header, per-result banners and fields appear in order
	want := "Found 2 relevant chunks:\n\n" +
		"--- Result 1 (similarity: 0.912) ---\n" +
		"Source: claims/deadwood.pdf\n" +
		"Year: 1852\n" +
		"Location: Deadwood\n" +
		"Text: gold nuggets near the creek\n\n" +
		"--- Result 2 (similarity: 0.500) ---\n" +
		"Source: notes.docx\n" +
		"Text: a survey of the valley\n\n"
	assert.Equal(t, want, out)
}

func TestFormatSearchResults_UnknownSource(t *testing.T) {
	out := FormatSearchResults([]store.Result{result("", "text", 0.1, nil, "")})
	assert.Contains(t, out, "Source: Unknown\n")
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"short", "hello", "hello"},
		{"exactly limit", strings.Repeat("a", 500), strings.Repeat("a", 500)},
		{"over limit", strings.Repeat("a", 501), strings.Repeat("a", 500) + "..."},
		{"multibyte counted as characters", strings.Repeat("é", 501), strings.Repeat("é", 500) + "..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, preview(tt.text))
		})
	}
}

func TestFormatIndexSummary(t *testing.T) {
	tests := []struct {
		name         string
		sum          docstore.Summary
		total        int
		wantContains []string
		wantMissing  []string
	}{
		{
			name:         "no files",
			sum:          docstore.Summary{},
			wantContains: []string{"No PDF or DOCX files found in /docs"},
		},
		{
			name:         "clean run",
			sum:          docstore.Summary{FilesProcessed: 2, ChunksAdded: 8},
			total:        8,
			wantContains: []string{"Indexed 2 files into 8 chunks"},
			wantMissing:  []string{"Skipped", "Failed", "Removed"},
		},
		{
			name:  "skips removals and failures",
			sum: docstore.Summary{
				FilesProcessed: 1,
				FilesSkipped:   3,
				FilesRemoved:   1,
				Failures:       []docstore.FileFailure{{File: "scan.pdf", Code: "ERR_206_FILE_CORRUPT", Reason: "no extractable text"}},
			},
			total: 20,
			wantContains: []string{
				"Indexed 1 files into 20 chunks",
				"Skipped 3 unchanged files",
				"Removed 1 deleted files",
				"Failed 1 files:",
				"- scan.pdf: no extractable text",
			},
		},
		{
			name:         "only removals",
			sum:          docstore.Summary{FilesRemoved: 2},
			wantContains: []string{"Indexed 0 files into 0 chunks", "Removed 2 deleted files"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatIndexSummary(&tt.sum, tt.total, "/docs")
			for _, s := range tt.wantContains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.wantMissing {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestFormatStats_IsIndentedJSON(t *testing.T) {
	// Given: stats without a year range
	out := FormatStats(StatsOutput{State: "EMPTY", Backend: "flat", Dimension: 384})

	// Then: the text is valid JSON with snake_case keys and no year fields
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "EMPTY", decoded["state"])
	assert.EqualValues(t, 0, decoded["total_chunks"])
	assert.NotContains(t, decoded, "min_year")
	assert.Contains(t, out, "\n  \"state\"")
}

func TestToSearchOutput(t *testing.T) {
	results := []store.Result{
		result("a.pdf", "alpha", 0.9, intPtr(1900), "Lead"),
		{Record: store.Record{Text: "beta", SourceFile: "b.docx", FileType: chunk.FileTypeDOCX, ChunkIndex: 3}, Similarity: 0.4},
	}

	out := toSearchOutput("query", results)

	require.Len(t, out.Results, 2)
	assert.Equal(t, "query", out.Query)
	assert.Equal(t, 1, out.Results[0].Rank)
	assert.Equal(t, "application/pdf", out.Results[0].MIMEType)
	assert.Equal(t, 1900, *out.Results[0].DateYear)
	assert.Equal(t, 2, out.Results[1].Rank)
	assert.Equal(t, 3, out.Results[1].ChunkIndex)
	assert.Equal(t, "docx", out.Results[1].FileType)
}

func TestToSearchOutput_EmptyIsNotNull(t *testing.T) {
	data, err := json.Marshal(toSearchOutput("q", nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"q","results":[]}`, string(data))
}
