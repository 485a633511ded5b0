package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/pkg/version"
)

// DocumentStore is the set of operations the server exposes as tools.
// *docstore.Store implements it.
type DocumentStore interface {
	IndexDocuments(ctx context.Context, opts docstore.IndexOptions) (*docstore.Summary, error)
	SearchDocuments(ctx context.Context, query string, k int, filter *store.Filter) ([]store.Result, error)
	Stats(ctx context.Context) (*docstore.Stats, error)
	Sources(ctx context.Context) (map[string]string, error)
	ClearIndex(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// SessionTimeout closes idle HTTP sessions. Zero keeps them open.
	SessionTimeout time.Duration
}

// Server exposes a DocumentStore over MCP. Every session, on any transport,
// shares the one store.
type Server struct {
	mcp    *mcp.Server
	docs   DocumentStore
	logger *slog.Logger
	opts   Options

	schemas map[ToolKind]*jsonschema.Resolved
}

// NewServer creates a server with the document tools and resources registered.
func NewServer(docs DocumentStore, opts Options) (*Server, error) {
	if docs == nil {
		return nil, errors.New("document store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		docs:    docs,
		logger:  opts.Logger,
		opts:    opts,
		schemas: make(map[ToolKind]*jsonschema.Resolved, len(toolKinds)),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		&mcp.ServerOptions{Logger: opts.Logger},
	)
	s.mcp.AddReceivingMiddleware(s.rejectUnknownTools)

	if err := s.registerTools(); err != nil {
		return nil, err
	}
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools adds every ToolKind with its input schema. All tools share
// one handler that dispatches through CallTool.
func (s *Server) registerTools() error {
	for _, kind := range toolKinds {
		in, out, err := toolSchemas(kind)
		if err != nil {
			return fmt.Errorf("schema for %s: %w", kind, err)
		}
		resolved, err := in.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
		if err != nil {
			return fmt.Errorf("resolve schema for %s: %w", kind, err)
		}
		s.schemas[kind] = resolved

		tool := &mcp.Tool{
			Name:        kind.String(),
			Description: kind.Description(),
			InputSchema: in,
		}
		if out != nil {
			tool.OutputSchema = out
		}
		s.mcp.AddTool(tool, s.handleToolCall)
		s.logger.Debug("registered tool", slog.String("name", kind.String()))
	}
	s.logger.Info("MCP tools registered", slog.Int("count", len(toolKinds)))
	return nil
}

// toolSchemas derives the input schema, and the output schema for tools
// that return structured content.
func toolSchemas(kind ToolKind) (in, out *jsonschema.Schema, err error) {
	opts := &jsonschema.ForOptions{}
	switch kind {
	case ToolIndexDocuments:
		in, err = jsonschema.For[IndexInput](opts)
	case ToolSearchDocuments:
		if in, err = jsonschema.For[SearchInput](opts); err == nil {
			out, err = jsonschema.For[SearchOutput](opts)
		}
	case ToolGetStats:
		if in, err = jsonschema.For[StatsInput](opts); err == nil {
			out, err = jsonschema.For[StatsOutput](opts)
		}
	case ToolClearIndex:
		in, err = jsonschema.For[ClearInput](opts)
	default:
		err = fmt.Errorf("unknown tool kind %d", kind)
	}
	return in, out, err
}

// rejectUnknownTools answers tools/call for unserved names with -32601.
func (s *Server) rejectUnknownTools(next mcp.MethodHandler) mcp.MethodHandler {
	return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
		if method == "tools/call" {
			if call, ok := req.(*mcp.CallToolRequest); ok && call.Params != nil {
				if ParseToolKind(call.Params.Name) == ToolUnknown {
					s.logger.Warn("unknown tool", slog.String("name", call.Params.Name))
					return nil, NewMethodNotFoundError(call.Params.Name)
				}
			}
		}
		return next(ctx, method, req)
	}
}

func (s *Server) handleToolCall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.CallTool(ctx, ParseToolKind(req.Params.Name), req.Params.Arguments)
}

// CallTool runs one tool. Argument and domain failures come back as an
// isError result; only protocol failures (bad argument shape, unknown tool)
// are returned as errors.
func (s *Server) CallTool(ctx context.Context, kind ToolKind, args json.RawMessage) (*mcp.CallToolResult, error) {
	start := time.Now()
	requestID := generateRequestID()
	logger := s.logger.With(slog.String("request_id", requestID))
	logger.Info(kind.String() + " started")

	var (
		res *mcp.CallToolResult
		err error
	)
	switch kind {
	case ToolIndexDocuments:
		res, err = runTool(ctx, s, kind, args, s.indexDocuments)
	case ToolSearchDocuments:
		res, err = runTool(ctx, s, kind, args, s.searchDocuments)
	case ToolGetStats:
		res, err = runTool(ctx, s, kind, args, s.getStats)
	case ToolClearIndex:
		res, err = runTool(ctx, s, kind, args, s.clearIndex)
	default:
		err = NewMethodNotFoundError(kind.String())
	}
	duration := time.Since(start)

	if err != nil {
		mapped := MapError(err)
		level := slog.LevelError
		if docerrors.IsValidation(err) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, kind.String()+" failed",
			slog.Duration("duration", duration),
			slog.String("code", errorCode(err)),
			slog.String("error", err.Error()))
		var te *ToolError
		if errors.As(mapped, &te) {
			return errorResult(te), nil
		}
		return nil, mapped
	}

	logger.Info(kind.String()+" completed", slog.Duration("duration", duration))
	return res, nil
}

// runTool validates args against the tool's schema, decodes them into In and
// calls fn.
func runTool[In any](ctx context.Context, s *Server, kind ToolKind, args json.RawMessage,
	fn func(context.Context, In) (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	var in In
	if err := s.decodeArgs(kind, args, &in); err != nil {
		return nil, err
	}
	return fn(ctx, in)
}

// decodeArgs reports arguments that do not fit the tool's schema as an input
// error, which reaches the caller as an isError result it can correct.
func (s *Server) decodeArgs(kind ToolKind, args json.RawMessage, dst any) error {
	m := map[string]any{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &m); err != nil {
			return argumentError(kind, err)
		}
		if m == nil {
			m = map[string]any{}
		}
	}
	if resolved := s.schemas[kind]; resolved != nil {
		if err := resolved.Validate(&m); err != nil {
			return argumentError(kind, err)
		}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return argumentError(kind, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return argumentError(kind, err)
	}
	return nil
}

func argumentError(kind ToolKind, cause error) error {
	code := docerrors.ErrCodeInvalidInput
	if kind == ToolSearchDocuments {
		code = docerrors.ErrCodeInvalidQuery
	}
	return docerrors.New(code, fmt.Sprintf("invalid arguments for %s: %v", kind, cause), cause).
		WithSuggestion("Check the tool's input schema for argument names and types")
}

func (s *Server) indexDocuments(ctx context.Context, in IndexInput) (*mcp.CallToolResult, error) {
	sum, err := s.docs.IndexDocuments(ctx, docstore.IndexOptions{Files: in.Files, Reindex: in.Reindex})
	if err != nil {
		return nil, err
	}
	st, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("index_documents summary",
		slog.String("run_id", sum.RunID),
		slog.Int("files_processed", sum.FilesProcessed),
		slog.Int("files_skipped", sum.FilesSkipped),
		slog.Int("files_failed", len(sum.Failures)),
		slog.Int("chunks_added", sum.ChunksAdded))
	return textResult(FormatIndexSummary(sum, st.ChunkCount, st.DocumentsRoot), sum), nil
}

func (s *Server) searchDocuments(ctx context.Context, in SearchInput) (*mcp.CallToolResult, error) {
	k := DefaultMaxResults
	if in.MaxResults != nil {
		k = *in.MaxResults
	}
	filter, err := searchFilter(in)
	if err != nil {
		return nil, err
	}
	results, err := s.docs.SearchDocuments(ctx, in.Query, k, filter)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("search_documents results", slog.Int("result_count", len(results)))
	return textResult(FormatSearchResults(results), toSearchOutput(in.Query, results)), nil
}

// searchFilter builds the metadata filter from search arguments.
func searchFilter(in SearchInput) (*store.Filter, error) {
	f := &store.Filter{
		Year:       in.DateYear,
		Location:   in.Location,
		SourceFile: in.SourceFile,
	}
	if in.DateYearRange != nil {
		if len(in.DateYearRange) != 2 {
			return nil, docerrors.New(docerrors.ErrCodeInvalidQuery,
				fmt.Sprintf("date_year_range must hold exactly two years, got %d", len(in.DateYearRange)), nil).
				WithSuggestion("Pass date_year_range as [from, to], for example [1850, 1860]")
		}
		f.YearRange = &[2]int{in.DateYearRange[0], in.DateYearRange[1]}
	}
	return f, nil
}

func (s *Server) getStats(ctx context.Context, _ StatsInput) (*mcp.CallToolResult, error) {
	st, err := s.docs.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := toStatsOutput(st)
	return textResult(FormatStats(out), out), nil
}

func (s *Server) clearIndex(ctx context.Context, _ ClearInput) (*mcp.CallToolResult, error) {
	if err := s.docs.ClearIndex(ctx); err != nil {
		return nil, err
	}
	return textResult("Index cleared successfully", nil), nil
}

func textResult(text string, structured any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: text}},
		StructuredContent: structured,
	}
}

func errorResult(te *ToolError) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: te.Message}},
		IsError: true,
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
