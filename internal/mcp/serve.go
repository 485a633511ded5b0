package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport names accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// DefaultHTTPAddr is used when Serve gets an empty address for http.
const DefaultHTTPAddr = "127.0.0.1:8765"

// MCPPath is where the streamable HTTP endpoint is mounted.
const MCPPath = "/mcp"

const shutdownTimeout = 5 * time.Second

// Serve runs the server on the named transport until ctx ends or, for
// stdio, the client closes stdin.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case TransportStdio:
		return s.ServeStdio(ctx, os.Stdin, os.Stdout)
	case TransportHTTP:
		if addr == "" {
			addr = DefaultHTTPAddr
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return s.ServeHTTP(ctx, ln)
	default:
		return fmt.Errorf("unknown transport: %s (supported: %s, %s)", transport, TransportStdio, TransportHTTP)
	}
}

// ServeStdio runs one session over a line transport.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	err := s.mcp.Run(ctx, NewLineTransport(in, out))
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}

// HTTPHandler returns the streamable HTTP handler. Sessions are created at
// initialize and identified by the Mcp-Session-Id header; requests naming an
// unknown session get 404.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return s.mcp },
		&mcp.StreamableHTTPOptions{
			Logger:         s.logger,
			SessionTimeout: s.opts.SessionTimeout,
		},
	)
}

// ServeHTTP serves the streamable endpoint on ln until ctx ends, then shuts
// down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(MCPPath, s.HTTPHandler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP transport listening", slog.String("addr", ln.Addr().String()), slog.String("path", MCPPath))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP shutdown incomplete", slog.String("error", err.Error()))
		_ = srv.Close()
	}
	<-errCh
	s.logger.Info("MCP server stopped gracefully")
	return nil
}
