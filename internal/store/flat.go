package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// FlatStore is an exact in-process index: every search scores every record.
// State lives in an immutable snapshot swapped atomically on each commit, so
// searches never wait for a writer and never observe a half-applied batch.
//
// Filtered search is approximate. The store ranks all records, keeps the top
// k*oversample candidates, applies the filter to that window only and then
// truncates to k. A selective filter can therefore return fewer than k
// results even though more matching records exist further down the ranking.
// The relational backend pushes filters into SQL and has no such gap.
type FlatStore struct {
	dir        string
	dims       int
	oversample int
	lock       *dirLock

	snap atomic.Pointer[flatSnapshot]

	// mu serialises writers; readers only load snap.
	mu     sync.Mutex
	closed atomic.Bool
}

// flatSnapshot is never mutated after publication.
type flatSnapshot struct {
	records []Record
	nextID  int64
}

// FlatConfig configures a FlatStore.
type FlatConfig struct {
	// Dir holds the snapshot pair. Empty means memory only.
	Dir        string
	Dimensions int
	Oversample int
}

// NewFlatStore creates an empty flat store. Call Load to restore a snapshot.
// With a Dir, every commit is written to disk before it becomes visible.
func NewFlatStore(cfg FlatConfig) (*FlatStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("flat store: dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = DefaultOversample
	}

	s := &FlatStore{
		dir:        cfg.Dir,
		dims:       cfg.Dimensions,
		oversample: cfg.Oversample,
	}
	if cfg.Dir != "" {
		s.lock = newDirLock(cfg.Dir)
	}
	s.snap.Store(&flatSnapshot{nextID: 1})
	return s, nil
}

// Upsert appends records.
func (s *FlatStore) Upsert(ctx context.Context, records []Record) (int, error) {
	return s.Apply(ctx, Batch{Records: records})
}

// Apply builds the next snapshot from the current one and publishes it in a
// single pointer swap. A store with a directory writes the snapshot to disk
// first; if that fails the previous snapshot stays published and the error is
// returned, so memory and disk never disagree.
func (s *FlatStore) Apply(ctx context.Context, batch Batch) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("store is closed")
	}
	if err := validateRecords(s.dims, batch.Records); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	old := s.snap.Load()
	next := &flatSnapshot{nextID: old.nextID}

	if !batch.Reset {
		drop := make(map[string]bool, len(batch.Replace))
		for _, src := range batch.Replace {
			drop[src] = true
		}
		next.records = make([]Record, 0, len(old.records)+len(batch.Records))
		for _, r := range old.records {
			if !drop[r.SourceFile] {
				next.records = append(next.records, r)
			}
		}
	} else {
		next.records = make([]Record, 0, len(batch.Records))
	}

	now := time.Now().UTC()
	for _, r := range batch.Records {
		r.ID = next.nextID
		next.nextID++
		r.Embedding = slices.Clone(r.Embedding)
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		next.records = append(next.records, r)
	}

	if s.dir != "" {
		if err := s.writeSnapshot(ctx, next); err != nil {
			return 0, err
		}
	}
	s.snap.Store(next)

	slog.Debug("flat_store_commit",
		slog.Bool("reset", batch.Reset),
		slog.Int("replaced_sources", len(batch.Replace)),
		slog.Int("added", len(batch.Records)),
		slog.Int("total", len(next.records)))

	return len(batch.Records), nil
}

// Search ranks every record against query. See the type comment for how
// filters interact with the candidate window.
func (s *FlatStore) Search(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("store is closed")
	}
	if err := validateSearch(s.dims, query, k, filter); err != nil {
		return nil, err
	}

	snap := s.snap.Load()
	ranked := make([]Result, 0, len(snap.records))
	for i, r := range snap.records {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ranked = append(ranked, Result{Record: r, Similarity: cosineSimilarity(query, r.Embedding)})
	}
	slices.SortFunc(ranked, compareResults)

	window := len(ranked)
	if k <= window/s.oversample {
		window = k * s.oversample
	}
	results := make([]Result, 0, min(k, window))
	for _, r := range ranked[:window] {
		if !filter.Matches(&r.Record) {
			continue
		}
		results = append(results, r)
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// compareResults orders by descending similarity, then ascending id.
func compareResults(a, b Result) int {
	switch {
	case a.Similarity > b.Similarity:
		return -1
	case a.Similarity < b.Similarity:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Stats reports counts for the current snapshot.
func (s *FlatStore) Stats(_ context.Context) (Stats, error) {
	snap := s.snap.Load()
	st := Stats{Backend: BackendFlat, ChunkCount: len(snap.records), Dimension: s.dims}

	sources := make(map[string]struct{})
	for i := range snap.records {
		sources[snap.records[i].SourceFile] = struct{}{}
		yearRange(&st.MinYear, &st.MaxYear, snap.records[i].DateYear)
	}
	st.SourceCount = len(sources)
	return st, nil
}

// Sources maps source files to content hashes.
func (s *FlatStore) Sources(_ context.Context) (map[string]string, error) {
	snap := s.snap.Load()
	out := make(map[string]string)
	for i := range snap.records {
		out[snap.records[i].SourceFile] = snap.records[i].ContentHash
	}
	return out, nil
}

// Clear publishes an empty snapshot. The id counter keeps counting so ids are
// never reused.
func (s *FlatStore) Clear(ctx context.Context) error {
	_, err := s.Apply(ctx, Batch{Reset: true})
	return err
}

// Dimensions returns the index dimension.
func (s *FlatStore) Dimensions() int { return s.dims }

// Name returns BackendFlat.
func (s *FlatStore) Name() string { return BackendFlat }

// Close marks the store closed.
func (s *FlatStore) Close() error {
	s.closed.Store(true)
	return nil
}

var _ Backend = (*FlatStore)(nil)
