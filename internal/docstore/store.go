package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/metadata"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// Config configures a Store.
type Config struct {
	// Root is the documents directory.
	Root string

	// FileTimeout bounds extraction, chunking and embedding of one file.
	FileTimeout time.Duration

	// Workers is the number of files processed in parallel.
	Workers int
}

// Dependencies are the collaborators a Store drives. Backend, Embedder and
// Extractor are required.
type Dependencies struct {
	Backend   store.Backend
	Embedder  embed.Embedder
	Extractor Extractor

	// Chunker defaults to chunk.NewChunker with default options.
	Chunker *chunk.Chunker

	// Metadata defaults to the default gazetteer.
	Metadata *metadata.Extractor
}

// Store is the single writer of an index and serves concurrent readers.
//
// Writers (IndexDocuments, ClearIndex) queue on a one-slot semaphore; a
// writer whose context ends while queued gets ERR_507_INDEX_BUSY. Searches
// never take the semaphore and see the backend's last committed state.
type Store struct {
	cfg      Config
	backend  store.Backend
	embedder embed.Embedder
	extract  Extractor
	chunker  *chunk.Chunker
	meta     *metadata.Extractor

	writer *semaphore.Weighted

	mu    sync.RWMutex
	state State
}

// New creates a Store. The initial state is READY when the backend already
// holds chunks.
func New(ctx context.Context, cfg Config, deps Dependencies) (*Store, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if deps.Embedder.Dimensions() != deps.Backend.Dimensions() {
		return nil, docerrors.DimensionMismatch(deps.Backend.Dimensions(), deps.Embedder.Dimensions()).
			WithSuggestion("Set embeddings.dimensions to match the index, or clear and reindex")
	}

	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = DefaultFileTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Root != "" {
		abs, err := filepath.Abs(cfg.Root)
		if err != nil {
			return nil, docerrors.New(docerrors.ErrCodeInvalidPath, "invalid documents root", err)
		}
		cfg.Root = abs
	}

	chunker := deps.Chunker
	if chunker == nil {
		var err error
		chunker, err = chunk.NewChunker(chunk.Options{})
		if err != nil {
			return nil, err
		}
	}
	meta := deps.Metadata
	if meta == nil {
		meta = metadata.NewExtractor(metadata.DefaultGazetteer)
	}

	s := &Store{
		cfg:      cfg,
		backend:  deps.Backend,
		embedder: deps.Embedder,
		extract:  deps.Extractor,
		chunker:  chunker,
		meta:     meta,
		writer:   semaphore.NewWeighted(1),
		state:    StateEmpty,
	}
	if err := s.refreshState(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// refreshState derives READY or EMPTY from the backend's chunk count.
func (s *Store) refreshState(ctx context.Context) error {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		return err
	}
	if st.ChunkCount > 0 {
		s.setState(StateReady)
	} else {
		s.setState(StateEmpty)
	}
	return nil
}

// acquireWriter waits for the writer slot.
func (s *Store) acquireWriter(ctx context.Context, op string) error {
	if err := s.writer.Acquire(ctx, 1); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexBusy,
			"another index operation is in progress", err).
			WithDetail("operation", op).
			WithSuggestion("Retry once the running index_documents or clear_index call finishes")
	}
	return nil
}

// SearchDocuments embeds query and returns up to k ranked chunks.
func (s *Store) SearchDocuments(ctx context.Context, query string, k int, filter *store.Filter) ([]store.Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, docerrors.New(docerrors.ErrCodeQueryEmpty, "query must not be empty", nil).
			WithSuggestion("Provide a natural-language search query")
	}
	if k <= 0 {
		return nil, docerrors.ValidationError(fmt.Sprintf("max_results must be positive, got %d", k), nil)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		var de *docerrors.DocError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, docerrors.New(docerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	results, err := s.backend.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}

	slog.Debug("search_completed",
		slog.Int("k", k),
		slog.Bool("filtered", !filter.Empty()),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// Stats reports backend statistics with the store's state and identity.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Stats:         st,
		State:         s.State(),
		Embedder:      embed.GetInfo(s.embedder),
		DocumentsRoot: s.cfg.Root,
	}, nil
}

// Sources maps each indexed source file to its content hash.
func (s *Store) Sources(ctx context.Context) (map[string]string, error) {
	return s.backend.Sources(ctx)
}

// ClearIndex removes every chunk. Clearing an empty index succeeds.
func (s *Store) ClearIndex(ctx context.Context) error {
	if err := s.acquireWriter(ctx, "clear_index"); err != nil {
		return err
	}
	defer s.writer.Release(1)

	if err := s.backend.Clear(ctx); err != nil {
		_ = s.refreshState(context.WithoutCancel(ctx))
		return commitError(ctx, err)
	}
	s.setState(StateEmpty)
	slog.Info("index_cleared", slog.String("backend", s.backend.Name()))
	return nil
}

// commitError classifies a failed backend commit. The backend keeps its
// previous state, so the index is unchanged.
func commitError(ctx context.Context, err error) error {
	var de *docerrors.DocError
	if errors.As(err, &de) || ctx.Err() != nil {
		return err
	}
	return docerrors.New(docerrors.ErrCodeIndexFailed, "failed to commit index changes", err)
}

// Root returns the absolute documents root.
func (s *Store) Root() string { return s.cfg.Root }

// Supported reports whether path can be indexed.
func (s *Store) Supported(path string) bool { return s.extract.Supported(path) }

// Close waits for an in-flight writer, then closes the backend and embedder.
func (s *Store) Close() error {
	if err := s.writer.Acquire(context.Background(), 1); err == nil {
		defer s.writer.Release(1)
	}
	return errors.Join(s.backend.Close(), s.embedder.Close())
}
