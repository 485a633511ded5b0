// Package extract pulls plain text out of PDF and DOCX files.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/chunk"
	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Document is the text of one file. Pages holds page boundaries for PDF and
// paragraph boundaries for DOCX; Text is Pages joined by newlines.
type Document struct {
	Text  string
	Pages []string
}

// Extractor reads one file format.
type Extractor interface {
	Extract(ctx context.Context, path string) (*Document, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, path string) (*Document, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, path string) (*Document, error) {
	return f(ctx, path)
}

// Registry maps lowercased file extensions to extractors and enforces the
// file size limit.
type Registry struct {
	byExt    map[string]Extractor
	maxBytes int64
}

// NewRegistry returns a registry with the PDF and DOCX extractors.
// maxFileSizeMB <= 0 disables the size check.
func NewRegistry(maxFileSizeMB int) *Registry {
	r := &Registry{
		byExt:    make(map[string]Extractor),
		maxBytes: int64(maxFileSizeMB) * 1024 * 1024,
	}
	r.Register(".pdf", PDFExtractor{})
	r.Register(".docx", DOCXExtractor{})
	return r
}

// Register installs e for ext (".pdf"), replacing any previous extractor.
func (r *Registry) Register(ext string, e Extractor) {
	r.byExt[strings.ToLower(ext)] = e
}

// Supported reports whether path has a registered extension.
func (r *Registry) Supported(path string) bool {
	_, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Retain drops every extractor whose extension is not in exts. An empty
// list keeps everything.
func (r *Registry) Retain(exts []string) {
	if len(exts) == 0 {
		return
	}
	keep := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		keep[strings.ToLower(ext)] = true
	}
	for ext := range r.byExt {
		if !keep[ext] {
			delete(r.byExt, ext)
		}
	}
}

// Extensions lists the registered extensions.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	return exts
}

// FileTypeOf maps a path to its chunk file type by extension.
func FileTypeOf(path string) chunk.FileType {
	return chunk.FileType(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Extract checks the file and dispatches to the extractor for its extension.
func (r *Registry) Extract(ctx context.Context, path string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, docerrors.New(docerrors.ErrCodeUnsupportedFile,
			fmt.Sprintf("unsupported file type %q: %s", ext, filepath.Base(path)), nil).
			WithSuggestion("Only PDF and DOCX files can be indexed.")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, docerrors.New(docerrors.ErrCodeFileNotFound, "file not found: "+path, err)
		}
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, "cannot stat "+path, err)
	}
	if info.IsDir() {
		return nil, docerrors.New(docerrors.ErrCodeInvalidPath, "not a file: "+path, nil)
	}
	if r.maxBytes > 0 && info.Size() > r.maxBytes {
		return nil, docerrors.Newf(docerrors.ErrCodeFileTooLarge,
			"%s is %d bytes, above the %d byte limit", filepath.Base(path), info.Size(), r.maxBytes).
			WithSuggestion("Raise documents.max_file_size_mb to index larger files.")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := e.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func corrupt(path string, cause error) *docerrors.DocError {
	return docerrors.New(docerrors.ErrCodeFileCorrupt,
		fmt.Sprintf("cannot read %s: %v", filepath.Base(path), cause), cause).
		WithDetail("path", path)
}

func newDocument(parts []string) *Document {
	return &Document{Text: strings.Join(parts, "\n"), Pages: parts}
}
