package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docsearch/internal/docstore"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Indexer is the part of the document store the reindexer drives.
type Indexer interface {
	IndexDocuments(ctx context.Context, opts docstore.IndexOptions) (*docstore.Summary, error)
}

// Reindexer turns event batches into incremental index runs.
type Reindexer struct {
	docs  Indexer
	retry docerrors.RetryConfig
}

// NewReindexer returns a reindexer over docs. Transient failures such as an
// unreachable embedding service are retried with backoff.
func NewReindexer(docs Indexer) *Reindexer {
	retry := docerrors.DefaultRetryConfig()
	retry.Jitter = true
	retry.ShouldRetry = docerrors.IsRetryable
	return &Reindexer{docs: docs, retry: retry}
}

// Plan returns the index options for one batch. Created and modified files
// are indexed by name. Any removal needs a full incremental pass, because
// only a walk of the root drops sources that are gone.
func Plan(batch []FileEvent) (docstore.IndexOptions, bool) {
	var files []string
	seen := make(map[string]bool, len(batch))
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		if ev.Operation.Removes() {
			return docstore.IndexOptions{}, true
		}
		if !seen[ev.Path] {
			seen[ev.Path] = true
			files = append(files, ev.Path)
		}
	}
	if len(files) == 0 {
		return docstore.IndexOptions{}, false
	}
	return docstore.IndexOptions{Files: files}, true
}

// Run consumes batches until the channel closes or ctx ends.
func (r *Reindexer) Run(ctx context.Context, batches <-chan []FileEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			if err := r.apply(ctx, batch); err != nil {
				return err
			}
		}
	}
}

// apply runs one batch. Only fatal errors are returned; anything else is
// logged and the next batch gets a fresh attempt.
func (r *Reindexer) apply(ctx context.Context, batch []FileEvent) error {
	opts, ok := Plan(batch)
	if !ok {
		return nil
	}

	start := time.Now()
	mode := "files"
	if len(opts.Files) == 0 {
		mode = "full"
	}
	sum, err := docerrors.RetryWithResult(ctx, r.retry, func() (*docstore.Summary, error) {
		return r.docs.IndexDocuments(ctx, opts)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Error("watch reindex failed",
			append([]any{slog.String("mode", mode), slog.Int("events", len(batch))}, docerrors.LogAttrs(err)...)...)
		if docerrors.IsFatal(err) {
			return err
		}
		return nil
	}
	slog.Info("watch reindex completed",
		slog.String("mode", mode),
		slog.Int("events", len(batch)),
		slog.Int("files_processed", sum.FilesProcessed),
		slog.Int("files_removed", sum.FilesRemoved),
		slog.Int("files_failed", len(sum.Failures)),
		slog.Int("chunks_added", sum.ChunksAdded),
		slog.Duration("duration", time.Since(start)))
	return nil
}
