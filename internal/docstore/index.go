package docstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/extract"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// target is one file selected for a run.
type target struct {
	abs  string
	rel  string // source_file: relative to the root, slash separated
	hash string
}

// fileResult is the outcome of processing one target.
type fileResult struct {
	records []store.Record
	err     error
}

// IndexDocuments brings the index up to date with the documents on disk and
// commits every change in one Backend.Apply.
func (s *Store) IndexDocuments(ctx context.Context, opts IndexOptions) (*Summary, error) {
	if err := s.acquireWriter(ctx, "index_documents"); err != nil {
		return nil, err
	}
	defer s.writer.Release(1)

	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), Reindex: opts.Reindex}
	logger := slog.Default().With(slog.String("run_id", summary.RunID))

	s.setState(StateIndexing)
	defer func() {
		if err := s.refreshState(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to refresh index state", slog.String("error", err.Error()))
		}
	}()

	logger.Info("index_run_started",
		slog.Bool("reindex", opts.Reindex),
		slog.Int("explicit_files", len(opts.Files)),
		slog.String("root", s.cfg.Root))

	targets, failures, err := s.resolveTargets(opts.Files)
	if err != nil {
		return nil, err
	}
	summary.Failures = append(summary.Failures, failures...)
	onDisk := make(map[string]bool, len(targets))
	for _, t := range targets {
		onDisk[t.rel] = true
	}

	targets, hashFailures := hashTargets(targets)
	summary.Failures = append(summary.Failures, hashFailures...)

	batch := store.Batch{Reset: opts.Reindex}
	var work []target
	if opts.Reindex {
		work = targets
	} else {
		known, err := s.backend.Sources(ctx)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if prev, ok := known[t.rel]; ok && prev == t.hash {
				summary.FilesSkipped++
				continue
			}
			work = append(work, t)
		}
		if len(opts.Files) == 0 {
			removed := removedSources(known, onDisk)
			batch.Replace = append(batch.Replace, removed...)
			summary.FilesRemoved = len(removed)
		}
	}

	results := s.processAll(ctx, work, opts.Progress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, t := range work {
		res := results[i]
		if res.err != nil {
			f := failureOf(t.rel, res.err)
			summary.Failures = append(summary.Failures, f)
			logger.Warn("file_index_failed",
				slog.String("file", t.rel),
				slog.String("code", f.Code),
				slog.String("reason", f.Reason))
			continue
		}
		summary.FilesProcessed++
		batch.Records = append(batch.Records, res.records...)
		if !opts.Reindex {
			// Drops the previous version of a changed file.
			batch.Replace = append(batch.Replace, t.rel)
		}
	}

	if batch.Reset || len(batch.Replace) > 0 || len(batch.Records) > 0 {
		added, err := s.backend.Apply(ctx, batch)
		if err != nil {
			return nil, commitError(ctx, err)
		}
		summary.ChunksAdded = added
	}

	summary.Elapsed = time.Since(start)
	logger.Info("index_run_completed",
		slog.Int("files_processed", summary.FilesProcessed),
		slog.Int("files_skipped", summary.FilesSkipped),
		slog.Int("files_removed", summary.FilesRemoved),
		slog.Int("files_failed", len(summary.Failures)),
		slog.Int("chunks_added", summary.ChunksAdded),
		slog.Duration("duration", summary.Elapsed))
	return summary, nil
}

// resolveTargets lists the files for a run in source_file order. Explicit
// files that cannot be indexed become failures; a missing root is an error.
func (s *Store) resolveTargets(files []string) ([]target, []FileFailure, error) {
	var targets []target
	var failures []FileFailure
	seen := make(map[string]bool)

	add := func(abs string) {
		rel := s.sourceName(abs)
		if seen[rel] {
			return
		}
		seen[rel] = true
		targets = append(targets, target{abs: abs, rel: rel})
	}

	if len(files) > 0 {
		for _, f := range files {
			abs := f
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(s.cfg.Root, f)
			}
			abs = filepath.Clean(abs)

			if !s.extract.Supported(abs) {
				failures = append(failures, FileFailure{
					File:   s.sourceName(abs),
					Code:   docerrors.ErrCodeUnsupportedFile,
					Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(abs)),
				})
				continue
			}
			info, err := os.Stat(abs)
			if err != nil || info.IsDir() {
				failures = append(failures, FileFailure{
					File:   s.sourceName(abs),
					Code:   docerrors.ErrCodeFileNotFound,
					Reason: "file not found",
				})
				continue
			}
			add(abs)
		}
	} else {
		if s.cfg.Root == "" {
			return nil, nil, docerrors.ConfigError("documents root is not configured", nil)
		}
		info, err := os.Stat(s.cfg.Root)
		if err != nil || !info.IsDir() {
			return nil, nil, docerrors.New(docerrors.ErrCodeFileNotFound,
				"documents root does not exist: "+s.cfg.Root, err).
				WithSuggestion("Create the directory or set documents.root")
		}
		err = filepath.WalkDir(s.cfg.Root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				slog.Warn("skipping unreadable path", slog.String("path", path), slog.String("error", err.Error()))
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != s.cfg.Root && strings.HasPrefix(d.Name(), ".") {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && s.extract.Supported(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, nil, docerrors.IOError("failed to walk documents root", err)
		}
	}

	slices.SortFunc(targets, func(a, b target) int { return strings.Compare(a.rel, b.rel) })
	return targets, failures, nil
}

// sourceName is the slash-separated path of abs relative to the root. Files
// outside the root keep their absolute path.
func (s *Store) sourceName(abs string) string {
	if s.cfg.Root != "" {
		if rel, err := filepath.Rel(s.cfg.Root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(abs)
}

// hashTargets fills in content hashes, dropping files that cannot be read.
func hashTargets(targets []target) ([]target, []FileFailure) {
	out := targets[:0]
	var failures []FileFailure
	for _, t := range targets {
		h, err := hashFile(t.abs)
		if err != nil {
			failures = append(failures, FileFailure{
				File:   t.rel,
				Code:   docerrors.ErrCodeFilePermission,
				Reason: err.Error(),
			})
			continue
		}
		t.hash = h
		out = append(out, t)
	}
	return out, failures
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// removedSources lists indexed sources that no longer exist under the root.
func removedSources(known map[string]string, present map[string]bool) []string {
	var gone []string
	for src := range known {
		if !present[src] {
			gone = append(gone, src)
		}
	}
	slices.Sort(gone)
	return gone
}

// processAll runs processFile over work with at most Workers in flight.
// results[i] belongs to work[i].
func (s *Store) processAll(ctx context.Context, work []target, progress func(done, total int)) []fileResult {
	results := make([]fileResult, len(work))

	var mu sync.Mutex
	done := 0

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, t := range work {
		g.Go(func() error {
			recs, err := s.processFile(ctx, t)
			results[i] = fileResult{records: recs, err: err}

			if progress != nil {
				mu.Lock()
				done++
				progress(done, len(work))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// processFile extracts, chunks, tags and embeds one file under the per-file
// timeout.
func (s *Store) processFile(ctx context.Context, t target) ([]store.Record, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FileTimeout)
	defer cancel()

	doc, err := s.extractWithDeadline(fctx, t.abs)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Chunk(doc.Text, t.rel, extract.FileTypeOf(t.abs), t.abs)
	if len(chunks) == 0 {
		return nil, docerrors.New(docerrors.ErrCodeFileCorrupt, "no extractable text", nil).
			WithSuggestion("Scanned PDFs need OCR before they can be indexed")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := s.embedder.EmbedBatch(fctx, texts)
	if err != nil {
		if timedOut(fctx, ctx) {
			return nil, timeoutError(s.cfg.FileTimeout, err)
		}
		return nil, err
	}
	if len(vecs) != len(chunks) {
		return nil, docerrors.Newf(docerrors.ErrCodeEmbeddingFailed,
			"embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}

	records := make([]store.Record, len(chunks))
	for i, c := range chunks {
		fields := s.meta.Extract(c.Text)
		records[i] = store.Record{
			Text:        c.Text,
			Embedding:   vecs[i],
			SourceFile:  c.SourceFile,
			FileType:    c.FileType,
			FilePath:    c.FilePath,
			ChunkIndex:  c.ChunkIndex,
			DateYear:    fields.Year,
			Location:    fields.Location,
			ContentHash: t.hash,
		}
	}
	return records, nil
}

// extractWithDeadline runs the extractor in its own goroutine so a parser
// that ignores ctx cannot hold the worker past the deadline. A late result
// is discarded.
func (s *Store) extractWithDeadline(ctx context.Context, path string) (*extract.Document, error) {
	type outcome struct {
		doc *extract.Document
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		doc, err := s.extract.Extract(ctx, path)
		ch <- outcome{doc, err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(o.err, context.DeadlineExceeded) {
			return nil, timeoutError(s.cfg.FileTimeout, o.err)
		}
		return o.doc, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(s.cfg.FileTimeout, ctx.Err())
		}
		return nil, ctx.Err()
	}
}

// timedOut reports whether fctx hit its own deadline rather than parent
// being cancelled.
func timedOut(fctx, parent context.Context) bool {
	return errors.Is(fctx.Err(), context.DeadlineExceeded) && parent.Err() == nil
}

func timeoutError(limit time.Duration, cause error) error {
	return docerrors.New(docerrors.ErrCodeExtractionTimeout,
		fmt.Sprintf("processing exceeded the %s per-file timeout", limit), cause).
		WithSuggestion("Raise documents.file_timeout or split the document")
}

// failureOf converts a per-file error into a summary entry.
func failureOf(file string, err error) FileFailure {
	f := FileFailure{File: file, Code: docerrors.GetCode(err), Reason: err.Error()}
	if de, ok := docerrors.As(err); ok {
		f.Reason = de.Message
	}
	return f
}
