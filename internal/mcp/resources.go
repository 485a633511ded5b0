package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs served alongside the tools.
const (
	StatsResourceURI   = "docsearch://index/stats"
	SourcesResourceURI = "docsearch://index/sources"
)

// SourceOutput is one entry of the sources resource.
type SourceOutput struct {
	SourceFile  string `json:"source_file"`
	MIMEType    string `json:"mime_type"`
	ContentHash string `json:"content_hash"`
}

// registerResources exposes index statistics and the indexed file list as
// read-only JSON resources.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "index_stats",
		URI:         StatsResourceURI,
		Description: "Statistics about the document index",
		MIMEType:    mimeTypes[".json"],
	}, s.readStatsResource)

	s.mcp.AddResource(&mcp.Resource{
		Name:        "indexed_sources",
		URI:         SourcesResourceURI,
		Description: "Indexed source files with their MIME types and content hashes",
		MIMEType:    mimeTypes[".json"],
	}, s.readSourcesResource)

	s.logger.Debug("registered resources", slog.Int("count", 2))
}

func (s *Server) readStatsResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	st, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(StatsResourceURI, toStatsOutput(st))
}

func (s *Server) readSourcesResource(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	sources, err := s.docs.Sources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SourceOutput, 0, len(sources))
	for name, hash := range sources {
		out = append(out, SourceOutput{SourceFile: name, MIMEType: MimeTypeForPath(name), ContentHash: hash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceFile < out[j].SourceFile })
	return jsonResource(SourcesResourceURI, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: mimeTypes[".json"],
			Text:     string(content),
		}},
	}, nil
}
