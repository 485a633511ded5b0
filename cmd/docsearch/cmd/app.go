package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/docstore"
	"github.com/Aman-CERP/docsearch/internal/embed"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/extract"
	"github.com/Aman-CERP/docsearch/internal/metadata"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// app is the wired document store for one command invocation.
type app struct {
	cfg      *config.Config
	docs     *docstore.Store
	registry *extract.Registry
}

// loadConfig reads configuration for the --config-dir project.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if info, err := os.Stat(o.configDir); err != nil || !info.IsDir() {
		return nil, docerrors.New(docerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("project directory not found: %s", o.configDir), err).
			WithSuggestion("Pass an existing directory with --config-dir")
	}
	cfg, err := config.Load(o.configDir)
	if err != nil {
		return nil, err
	}
	if o.debug {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, nil
}

// openApp builds embedder, backend, extractor and document store from cfg.
// sqlLog receives bun query logs when storage.debug_sql is set.
func openApp(ctx context.Context, cfg *config.Config, sqlLog io.Writer) (*app, error) {
	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	backend, err := store.Open(ctx, cfg.Storage, store.Options{
		Dimensions: embedder.Dimensions(),
		SQLLog:     sqlLog,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	chunker, err := chunk.NewChunker(chunk.Options{
		Size:    cfg.Chunking.Size,
		Overlap: cfg.Chunking.Overlap,
	})
	if err != nil {
		_ = backend.Close()
		_ = embedder.Close()
		return nil, err
	}

	registry := extract.NewRegistry(cfg.Documents.MaxFileSizeMB)
	registry.Retain(cfg.Documents.Extensions)

	docs, err := docstore.New(ctx, docstore.Config{
		Root:        cfg.Documents.Root,
		FileTimeout: cfg.Documents.FileTimeout.Std(),
		Workers:     cfg.Documents.IndexWorkers,
	}, docstore.Dependencies{
		Backend:   backend,
		Embedder:  embedder,
		Extractor: registry,
		Chunker:   chunker,
		Metadata:  metadata.NewExtractor(cfg.Metadata.Gazetteer),
	})
	if err != nil {
		_ = backend.Close()
		_ = embedder.Close()
		return nil, err
	}

	slog.Debug("document store opened",
		slog.String("backend", backend.Name()),
		slog.Int("dimensions", backend.Dimensions()),
		slog.String("root", docs.Root()))
	return &app{cfg: cfg, docs: docs, registry: registry}, nil
}

// withApp loads config, opens the store, runs fn and closes the store.
func (o *rootOptions) withApp(ctx context.Context, fn func(*app) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	var sqlLog io.Writer
	if cfg.Storage.DebugSQL {
		sqlLog = os.Stderr
	}
	a, err := openApp(ctx, cfg, sqlLog)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.docs.Close(); err != nil {
			slog.Warn("failed to close document store", slog.String("error", err.Error()))
		}
	}()
	return fn(a)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
