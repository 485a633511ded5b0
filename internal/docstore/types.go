// Package docstore orchestrates document indexing and retrieval: it turns
// files into embedded chunks, commits them to a store.Backend and answers
// search, stats and clear requests on top of it.
package docstore

import (
	"context"
	"time"

	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/extract"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// State is the lifecycle state of the index.
type State string

const (
	// StateEmpty means the backend holds no chunks.
	StateEmpty State = "EMPTY"
	// StateIndexing means a writer holds the lock.
	StateIndexing State = "INDEXING"
	// StateReady means the backend holds at least one chunk.
	StateReady State = "READY"
)

// Defaults applied by New when Config fields are zero.
const (
	DefaultFileTimeout = 2 * time.Minute
	DefaultWorkers     = 4
)

// Extractor reads the text of one document. *extract.Registry implements it.
type Extractor interface {
	Extract(ctx context.Context, path string) (*extract.Document, error)
	Supported(path string) bool
}

// IndexOptions selects what IndexDocuments processes.
type IndexOptions struct {
	// Files limits the run to these paths. Relative paths resolve against
	// the documents root. Empty means walk the whole root.
	Files []string

	// Reindex drops the existing index in the same commit as the new chunks
	// and processes every file regardless of its content hash.
	Reindex bool

	// Progress, when set, is called after each file finishes. Calls are
	// serialised.
	Progress func(done, total int)
}

// FileFailure records why one file contributed no chunks.
type FileFailure struct {
	File   string `json:"file"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// Summary reports the outcome of one IndexDocuments run.
type Summary struct {
	RunID          string        `json:"run_id"`
	Reindex        bool          `json:"reindex"`
	FilesProcessed int           `json:"files_processed"`
	FilesSkipped   int           `json:"files_skipped"`
	FilesRemoved   int           `json:"files_removed"`
	ChunksAdded    int           `json:"chunks_added"`
	Failures       []FileFailure `json:"failures,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Stats combines backend statistics with store state.
type Stats struct {
	store.Stats
	State         State
	Embedder      embed.EmbedderInfo
	DocumentsRoot string
}
