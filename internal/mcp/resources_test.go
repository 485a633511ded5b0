package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/store"
)

func readResource(t *testing.T, cs *mcp.ClientSession, uri string) *mcp.ReadResourceResult {
	t.Helper()
	res, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: uri})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	return res
}

func TestListResources(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeDocs{}))

	res, err := cs.ListResources(context.Background(), nil)
	require.NoError(t, err)

	var uris []string
	for _, r := range res.Resources {
		uris = append(uris, r.URI)
		assert.Equal(t, "application/json", r.MIMEType)
	}
	assert.ElementsMatch(t, []string{StatsResourceURI, SourcesResourceURI}, uris)
}

func TestReadStatsResource(t *testing.T) {
	// Given: a ready index
	docs := &fakeDocs{StatsFn: func(context.Context) (*docstore.Stats, error) {
		return &docstore.Stats{
			Stats: store.Stats{Backend: store.BackendFlat, ChunkCount: 12, Dimension: 64, SourceCount: 3},
			State: docstore.StateReady,
		}, nil
	}}
	cs := connect(t, newTestServer(t, docs))

	// When: reading the stats resource
	res := readResource(t, cs, StatsResourceURI)

	// Then: the contents are the stats as JSON
	content := res.Contents[0]
	assert.Equal(t, StatsResourceURI, content.URI)
	assert.Equal(t, "application/json", content.MIMEType)

	var out StatsOutput
	require.NoError(t, json.Unmarshal([]byte(content.Text), &out))
	assert.Equal(t, "READY", out.State)
	assert.Equal(t, 12, out.TotalChunks)
	assert.Equal(t, 3, out.SourceFiles)
}

func TestReadSourcesResource_SortedWithMIMETypes(t *testing.T) {
	// Given: sources returned in map order
	docs := &fakeDocs{SourcesFn: func(context.Context) (map[string]string, error) {
		return map[string]string{
			"reports/z.docx": "hash-z",
			"a.pdf":          "hash-a",
			"m.PDF":          "hash-m",
		}, nil
	}}
	cs := connect(t, newTestServer(t, docs))

	// When: reading the sources resource
	res := readResource(t, cs, SourcesResourceURI)

	// Then: entries are sorted by name and carry their MIME type and hash
	var out []SourceOutput
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &out))
	require.Len(t, out, 3)
	assert.Equal(t, SourceOutput{SourceFile: "a.pdf", MIMEType: "application/pdf", ContentHash: "hash-a"}, out[0])
	assert.Equal(t, "m.PDF", out[1].SourceFile)
	assert.Equal(t, "application/pdf", out[1].MIMEType)
	assert.Equal(t, "reports/z.docx", out[2].SourceFile)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", out[2].MIMEType)
}

func TestReadSourcesResource_EmptyIndex(t *testing.T) {
	cs := connect(t, newTestServer(t, &fakeDocs{}))

	res := readResource(t, cs, SourcesResourceURI)

	assert.JSONEq(t, `[]`, res.Contents[0].Text)
}

func TestReadResource_StoreFailure(t *testing.T) {
	docs := &fakeDocs{SourcesFn: func(context.Context) (map[string]string, error) {
		return nil, errors.New("disk unavailable")
	}}
	cs := connect(t, newTestServer(t, docs))

	_, err := cs.ReadResource(context.Background(), &mcp.ReadResourceParams{URI: SourcesResourceURI})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk unavailable")
}
