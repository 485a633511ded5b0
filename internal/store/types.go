// Package store provides the vector index backends: an in-process flat index
// persisted as a snapshot file pair, and a relational store with a native
// vector column (Postgres/pgvector or embedded SQLite).
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Backend names reported in Stats.
const (
	BackendFlat     = "flat"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// DefaultOversample is the flat backend's candidate multiplier for filtered search.
const DefaultOversample = 4

// Record is one embedded chunk as stored in a backend.
type Record struct {
	// ID is assigned by the backend on insert; zero on input.
	ID          int64
	Text        string
	Embedding   []float32
	SourceFile  string
	FileType    chunk.FileType
	FilePath    string
	ChunkIndex  int
	DateYear    *int
	Location    string
	ContentHash string
	CreatedAt   time.Time
}

// Result is a search hit.
type Result struct {
	Record
	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64
}

// Filter is a conjunction of optional predicates. The zero value matches everything.
type Filter struct {
	Year       *int
	YearRange  *[2]int
	Location   string
	SourceFile string
}

// Empty reports whether f has no predicates.
func (f *Filter) Empty() bool {
	return f == nil || (f.Year == nil && f.YearRange == nil && f.Location == "" && f.SourceFile == "")
}

// Validate checks predicate consistency.
func (f *Filter) Validate() error {
	if f == nil || f.YearRange == nil {
		return nil
	}
	if f.YearRange[0] > f.YearRange[1] {
		return docerrors.ValidationError(
			fmt.Sprintf("invalid year range [%d, %d]: start is after end", f.YearRange[0], f.YearRange[1]), nil).
			WithSuggestion("Pass date_year_range as [from, to] with from <= to")
	}
	return nil
}

// Matches evaluates f against r in memory.
func (f *Filter) Matches(r *Record) bool {
	if f.Empty() {
		return true
	}
	if f.Year != nil && (r.DateYear == nil || *r.DateYear != *f.Year) {
		return false
	}
	if f.YearRange != nil {
		if r.DateYear == nil || *r.DateYear < f.YearRange[0] || *r.DateYear > f.YearRange[1] {
			return false
		}
	}
	if f.Location != "" && !strings.EqualFold(r.Location, f.Location) {
		return false
	}
	if f.SourceFile != "" && r.SourceFile != f.SourceFile {
		return false
	}
	return true
}

// Batch is one atomic index mutation. Reset drops every row, Replace drops
// the rows of the listed source files, then Records are appended. Readers see
// the index either before or after the whole batch.
type Batch struct {
	Reset   bool
	Replace []string
	Records []Record
}

// Stats summarises a backend's contents.
type Stats struct {
	Backend     string
	ChunkCount  int
	SourceCount int
	Dimension   int
	// MinYear and MaxYear are nil when no chunk carries a year.
	MinYear *int
	MaxYear *int
}

// Backend is the index contract shared by every storage engine.
type Backend interface {
	// Upsert appends records and returns how many were added.
	Upsert(ctx context.Context, records []Record) (int, error)

	// Apply commits a Batch atomically and returns how many records were added.
	Apply(ctx context.Context, batch Batch) (int, error)

	// Search returns at most k results by descending similarity, ties by ascending id.
	Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error)

	Stats(ctx context.Context) (Stats, error)

	// Sources maps each indexed source file to its content hash.
	Sources(ctx context.Context) (map[string]string, error)

	// Clear removes every record. Clearing an empty index is not an error.
	Clear(ctx context.Context) error

	Dimensions() int
	Name() string
	Close() error
}

// validateSearch checks the arguments common to every backend's Search.
func validateSearch(dims int, query []float32, k int, filter *Filter) error {
	if k <= 0 {
		return docerrors.ValidationError(fmt.Sprintf("max_results must be positive, got %d", k), nil)
	}
	if len(query) != dims {
		return docerrors.DimensionMismatch(dims, len(query))
	}
	return filter.Validate()
}

// validateRecords rejects records that cannot be stored.
func validateRecords(dims int, records []Record) error {
	for i := range records {
		r := &records[i]
		if len(r.Embedding) != dims {
			return docerrors.DimensionMismatch(dims, len(r.Embedding)).
				WithDetail("source_file", r.SourceFile).
				WithDetail("chunk_index", fmt.Sprint(r.ChunkIndex))
		}
		if strings.TrimSpace(r.Text) == "" {
			return docerrors.ValidationError(
				fmt.Sprintf("chunk %d of %s has empty text", r.ChunkIndex, r.SourceFile), nil)
		}
	}
	return nil
}

// yearRange folds a year into running min/max bounds.
func yearRange(minY, maxY **int, year *int) {
	if year == nil {
		return
	}
	y := *year
	if *minY == nil || y < **minY {
		*minY = &y
	}
	if *maxY == nil || y > **maxY {
		v := y
		*maxY = &v
	}
}
