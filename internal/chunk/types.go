// Package chunk splits extracted document text into overlapping word windows.
package chunk

// Chunk size defaults.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// FileType identifies the source document format.
type FileType string

const (
	FileTypePDF  FileType = "pdf"
	FileTypeDOCX FileType = "docx"
)

// Chunk is a retrievable unit of document text, before embedding.
type Chunk struct {
	Text       string   // Space-joined word tokens
	SourceFile string   // Relative to the documents root, slash separated
	FileType   FileType // pdf or docx
	FilePath   string   // Absolute path at index time
	ChunkIndex int      // Zero-based, contiguous per document
}

// Options configures the Chunker.
type Options struct {
	Size    int // Maximum word tokens per chunk (default: DefaultChunkSize)
	Overlap int // Tokens shared with the previous chunk (default: DefaultChunkOverlap)
}
