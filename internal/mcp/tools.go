package mcp

import (
	"strings"

	"github.com/Aman-CERP/docsearch/internal/docstore"
)

// ToolKind identifies one of the server's tools. Dispatch switches over it.
type ToolKind int

const (
	// ToolUnknown is any name the server does not serve.
	ToolUnknown ToolKind = iota
	ToolIndexDocuments
	ToolSearchDocuments
	ToolGetStats
	ToolClearIndex
)

// toolKinds lists the served tools in registration order.
var toolKinds = []ToolKind{ToolIndexDocuments, ToolSearchDocuments, ToolGetStats, ToolClearIndex}

// ParseToolKind maps a wire name to its kind.
func ParseToolKind(name string) ToolKind {
	switch name {
	case "index_documents":
		return ToolIndexDocuments
	case "search_documents":
		return ToolSearchDocuments
	case "get_stats":
		return ToolGetStats
	case "clear_index":
		return ToolClearIndex
	default:
		return ToolUnknown
	}
}

// String returns the wire name.
func (k ToolKind) String() string {
	switch k {
	case ToolIndexDocuments:
		return "index_documents"
	case ToolSearchDocuments:
		return "search_documents"
	case ToolGetStats:
		return "get_stats"
	case ToolClearIndex:
		return "clear_index"
	default:
		return "unknown"
	}
}

// Description is shown to clients in tools/list.
func (k ToolKind) Description() string {
	switch k {
	case ToolIndexDocuments:
		return "Index the PDF and DOCX files in the documents folder so they become searchable. " +
			"Unchanged files are skipped; set reindex to rebuild everything, or pass files to index only those."
	case ToolSearchDocuments:
		return "Search indexed PDF and DOCX documents by semantic similarity. Returns the most relevant text chunks, " +
			"optionally filtered by year, year range, location or source file."
	case ToolGetStats:
		return "Get statistics about the document index: chunk count, embedding dimension, distinct files, year range, backend and state."
	case ToolClearIndex:
		return "Remove every indexed document from the vector store."
	default:
		return ""
	}
}

func toolNames() string {
	names := make([]string, len(toolKinds))
	for i, k := range toolKinds {
		names[i] = k.String()
	}
	return strings.Join(names, ", ")
}

// DefaultMaxResults applies when search_documents omits max_results.
const DefaultMaxResults = 5

// IndexInput is the index_documents argument object.
type IndexInput struct {
	Reindex bool     `json:"reindex,omitempty" jsonschema:"if true, clear the existing index and reindex all documents"`
	Files   []string `json:"files,omitempty" jsonschema:"index only these files, relative to the documents folder"`
}

// SearchInput is the search_documents argument object.
type SearchInput struct {
	Query         string `json:"query" jsonschema:"the search query to find relevant document chunks"`
	MaxResults    *int   `json:"max_results,omitempty" jsonschema:"maximum number of results to return, default 5"`
	DateYear      *int   `json:"date_year,omitempty" jsonschema:"only chunks that mention this year"`
	DateYearRange []int  `json:"date_year_range,omitempty" jsonschema:"only chunks whose year falls in [from, to], inclusive"`
	Location      string `json:"location,omitempty" jsonschema:"only chunks that mention this place (case-insensitive)"`
	SourceFile    string `json:"source_file,omitempty" jsonschema:"only chunks from this file, relative to the documents folder"`
}

// StatsInput is the empty get_stats argument object.
type StatsInput struct{}

// ClearInput is the empty clear_index argument object.
type ClearInput struct{}

// SearchOutput is the structured search_documents result.
type SearchOutput struct {
	Query   string               `json:"query"`
	Results []SearchResultOutput `json:"results"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	Rank       int     `json:"rank"`
	Similarity float64 `json:"similarity"`
	SourceFile string  `json:"source_file"`
	FileType   string  `json:"file_type"`
	MIMEType   string  `json:"mime_type"`
	ChunkIndex int     `json:"chunk_index"`
	DateYear   *int    `json:"date_year,omitempty"`
	Location   string  `json:"location,omitempty"`
	Text       string  `json:"text"`
}

// StatsOutput is the structured get_stats result.
type StatsOutput struct {
	State             string `json:"state"`
	Backend           string `json:"backend"`
	TotalChunks       int    `json:"total_chunks"`
	Dimension         int    `json:"dimension"`
	SourceFiles       int    `json:"source_files"`
	MinYear           *int   `json:"min_year,omitempty"`
	MaxYear           *int   `json:"max_year,omitempty"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	DocumentsRoot     string `json:"documents_root"`
}

// toStatsOutput flattens store statistics for the wire.
func toStatsOutput(st *docstore.Stats) StatsOutput {
	return StatsOutput{
		State:             string(st.State),
		Backend:           st.Backend,
		TotalChunks:       st.ChunkCount,
		Dimension:         st.Dimension,
		SourceFiles:       st.SourceCount,
		MinYear:           st.MinYear,
		MaxYear:           st.MaxYear,
		EmbeddingProvider: string(st.Embedder.Provider),
		EmbeddingModel:    st.Embedder.Model,
		DocumentsRoot:     st.DocumentsRoot,
	}
}
