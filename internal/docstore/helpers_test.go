package docstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/extract"
	"github.com/Aman-CERP/docsearch/internal/store"
)

const testDims = 64

// fakeExtractor reads files as plain text unless ExtractFn is set.
type fakeExtractor struct {
	ExtractFn func(ctx context.Context, path string) (*extract.Document, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*extract.Document, error) {
	if f.ExtractFn != nil {
		return f.ExtractFn(ctx, path)
	}
	return readPlain(path)
}

func (f *fakeExtractor) Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		return true
	}
	return false
}

func readPlain(path string) (*extract.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &extract.Document{Text: string(b), Pages: []string{string(b)}}, nil
}

// fakeBackend delegates to a real backend, with per-method overrides.
type fakeBackend struct {
	store.Backend
	ApplyFn func(ctx context.Context, batch store.Batch) (int, error)
}

func (f *fakeBackend) Apply(ctx context.Context, batch store.Batch) (int, error) {
	if f.ApplyFn != nil {
		return f.ApplyFn(ctx, batch)
	}
	return f.Backend.Apply(ctx, batch)
}

// words returns n distinct filler words tagged with prefix.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func writeDoc(t *testing.T, root, name, text string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

type fixture struct {
	root     string
	store    *Store
	backend  store.Backend
	extract  *fakeExtractor
	embedder embed.Embedder
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	backend     func(t *testing.T) store.Backend
	wrap        func(store.Backend) store.Backend
	fileTimeout time.Duration
	workers     int
}

func withSQLite() fixtureOption {
	return func(c *fixtureConfig) {
		c.backend = func(t *testing.T) store.Backend {
			b, err := store.Open(context.Background(), config.StorageConfig{
				Backend:      store.BackendSQLite,
				SQLitePath:   filepath.Join(t.TempDir(), "index.db"),
				MaxOpenConns: 4,
			}, store.Options{Dimensions: testDims})
			require.NoError(t, err)
			return b
		}
	}
}

func withFlatDir(dir string) fixtureOption {
	return func(c *fixtureConfig) {
		c.backend = func(t *testing.T) store.Backend {
			b, err := store.Open(context.Background(), config.StorageConfig{
				Backend:        store.BackendFlat,
				VectorStoreDir: dir,
			}, store.Options{Dimensions: testDims})
			require.NoError(t, err)
			return b
		}
	}
}

func withBackendWrapper(wrap func(store.Backend) store.Backend) fixtureOption {
	return func(c *fixtureConfig) { c.wrap = wrap }
}

func withFileTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.fileTimeout = d }
}

func withWorkers(n int) fixtureOption {
	return func(c *fixtureConfig) { c.workers = n }
}

// newFixture builds a Store over an in-memory flat backend by default, with
// 10-word chunks and no overlap so chunk counts are easy to control.
func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	fc := fixtureConfig{
		backend: func(t *testing.T) store.Backend {
			b, err := store.NewFlatStore(store.FlatConfig{Dimensions: testDims})
			require.NoError(t, err)
			return b
		},
		fileTimeout: 5 * time.Second,
		workers:     2,
	}
	for _, o := range opts {
		o(&fc)
	}

	backend := fc.backend(t)
	if fc.wrap != nil {
		backend = fc.wrap(backend)
	}
	chunker, err := chunk.NewChunker(chunk.Options{Size: 10, Overlap: 0})
	require.NoError(t, err)

	f := &fixture{
		root:     t.TempDir(),
		backend:  backend,
		extract:  &fakeExtractor{},
		embedder: embed.NewStaticEmbedder(testDims),
	}
	f.store, err = New(context.Background(), Config{
		Root:        f.root,
		FileTimeout: fc.fileTimeout,
		Workers:     fc.workers,
	}, Dependencies{
		Backend:   backend,
		Embedder:  f.embedder,
		Extractor: f.extract,
		Chunker:   chunker,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.store.Close() })
	return f
}

func (f *fixture) chunkCount(t *testing.T) int {
	t.Helper()
	st, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	return st.ChunkCount
}
