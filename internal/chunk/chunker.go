package chunk

import (
	"fmt"
	"strings"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// Chunker produces fixed-size word windows that advance by Size-Overlap tokens.
// It is stateless and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates opts and returns a Chunker. A zero Size selects the
// defaults; 0 <= Overlap < Size is required.
func NewChunker(opts Options) (*Chunker, error) {
	if opts.Size == 0 {
		opts.Size = DefaultChunkSize
		if opts.Overlap == 0 {
			opts.Overlap = DefaultChunkOverlap
		}
	}
	if opts.Size < 0 {
		return nil, docerrors.ValidationError(fmt.Sprintf("chunk size must be positive, got %d", opts.Size), nil)
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		return nil, docerrors.ValidationError(
			fmt.Sprintf("chunk overlap must be in [0, %d), got %d", opts.Size, opts.Overlap), nil).
			WithSuggestion("Set chunking.overlap below chunking.size.")
	}
	return &Chunker{size: opts.Size, overlap: opts.Overlap}, nil
}

// Size returns the window size in tokens.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap in tokens.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text into windows. Whitespace-only text yields no chunks.
// The last window always ends at the final token, and no window is wholly
// contained in the previous one.
func (c *Chunker) Chunk(text, sourceFile string, fileType FileType, filePath string) []Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	chunks := make([]Chunk, 0, (len(words)+stride-1)/stride)
	for start := 0; ; start += stride {
		end := min(start+c.size, len(words))
		chunks = append(chunks, Chunk{
			Text:       strings.Join(words[start:end], " "),
			SourceFile: sourceFile,
			FileType:   fileType,
			FilePath:   filePath,
			ChunkIndex: len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
