package extract

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor reads PDF text page by page.
type PDFExtractor struct{}

// Extract implements Extractor. Parser panics on malformed input are
// reported as corrupt-file errors.
func (PDFExtractor) Extract(ctx context.Context, path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, corrupt(path, fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, corrupt(path, err)
	}
	defer f.Close()

	n := r.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, corrupt(path, fmt.Errorf("page %d: %w", i, err))
		}
		pages = append(pages, text)
	}
	return newDocument(pages), nil
}
