package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/extract"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// fakeDocs implements DocumentStore with per-method overrides.
type fakeDocs struct {
	IndexFn   func(ctx context.Context, opts docstore.IndexOptions) (*docstore.Summary, error)
	SearchFn  func(ctx context.Context, query string, k int, filter *store.Filter) ([]store.Result, error)
	StatsFn   func(ctx context.Context) (*docstore.Stats, error)
	SourcesFn func(ctx context.Context) (map[string]string, error)
	ClearFn   func(ctx context.Context) error
}

var _ DocumentStore = (*fakeDocs)(nil)
var _ DocumentStore = (*docstore.Store)(nil)

func (f *fakeDocs) IndexDocuments(ctx context.Context, opts docstore.IndexOptions) (*docstore.Summary, error) {
	if f.IndexFn != nil {
		return f.IndexFn(ctx, opts)
	}
	return &docstore.Summary{}, nil
}

func (f *fakeDocs) SearchDocuments(ctx context.Context, query string, k int, filter *store.Filter) ([]store.Result, error) {
	if f.SearchFn != nil {
		return f.SearchFn(ctx, query, k, filter)
	}
	return nil, nil
}

func (f *fakeDocs) Stats(ctx context.Context) (*docstore.Stats, error) {
	if f.StatsFn != nil {
		return f.StatsFn(ctx)
	}
	return &docstore.Stats{Stats: store.Stats{Backend: store.BackendFlat}, State: docstore.StateEmpty}, nil
}

func (f *fakeDocs) Sources(ctx context.Context) (map[string]string, error) {
	if f.SourcesFn != nil {
		return f.SourcesFn(ctx)
	}
	return map[string]string{}, nil
}

func (f *fakeDocs) ClearIndex(ctx context.Context) error {
	if f.ClearFn != nil {
		return f.ClearFn(ctx)
	}
	return nil
}

func newTestServer(t *testing.T, docs DocumentStore) *Server {
	t.Helper()
	s, err := NewServer(docs, Options{})
	require.NoError(t, err)
	return s
}

// connect opens an in-memory client session against s.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientT, serverT := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "docsearch-test", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

// newDocStore builds a real store over an in-memory flat index. Files with a
// .pdf extension are read as plain text; chunks are ten words.
func newDocStore(t *testing.T) (*docstore.Store, string) {
	t.Helper()
	const dims = 64

	backend, err := store.NewFlatStore(store.FlatConfig{Dimensions: dims})
	require.NoError(t, err)
	chunker, err := chunk.NewChunker(chunk.Options{Size: 10, Overlap: 0})
	require.NoError(t, err)

	registry := extract.NewRegistry(10)
	registry.Register(".pdf", extract.ExtractorFunc(func(_ context.Context, path string) (*extract.Document, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return &extract.Document{Text: string(b), Pages: []string{string(b)}}, nil
	}))

	root := t.TempDir()
	ds, err := docstore.New(context.Background(), docstore.Config{
		Root:        root,
		FileTimeout: 5 * time.Second,
		Workers:     2,
	}, docstore.Dependencies{
		Backend:   backend,
		Embedder:  embed.NewStaticEmbedder(dims),
		Extractor: registry,
		Chunker:   chunker,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds, root
}

func writeDoc(t *testing.T, root, name, text string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
}

// words returns n distinct filler words tagged with prefix.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}
