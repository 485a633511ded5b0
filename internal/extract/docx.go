package extract

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXExtractor reads the paragraphs of word/document.xml.
type DOCXExtractor struct{}

// Extract implements Extractor.
func (DOCXExtractor) Extract(ctx context.Context, path string) (*Document, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, corrupt(path, err)
	}
	defer r.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	paras, err := paragraphs(r.Editable().GetContent())
	if err != nil {
		return nil, corrupt(path, err)
	}
	return newDocument(paras), nil
}

// paragraphs walks WordprocessingML and returns the text of each non-empty
// <w:p>. Tabs and breaks become whitespace.
func paragraphs(content string) ([]string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		out []string
		cur strings.Builder
		inT bool
		inP bool
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if inP {
					flush()
				}
				inP = true
			case "t":
				inT = true
			case "tab":
				cur.WriteByte('\t')
			case "br", "cr":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				flush()
				inP = false
			case "t":
				inT = false
			}
		case xml.CharData:
			if inT {
				cur.Write(t)
			}
		}
	}
	flush()
	return out, nil
}
