package mcp

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/docsearch/internal/chunk"
)

// mimeTypes maps document extensions to MIME types.
var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".json": "application/json",
	".txt":  "text/plain",
}

// MimeTypeForPath returns the MIME type for a document path, or
// "application/octet-stream" for unknown extensions.
func MimeTypeForPath(path string) string {
	if mime, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// mimeTypeForFileType prefers the recorded file type over the extension.
func mimeTypeForFileType(ft chunk.FileType, path string) string {
	switch ft {
	case chunk.FileTypePDF:
		return mimeTypes[".pdf"]
	case chunk.FileTypeDOCX:
		return mimeTypes[".docx"]
	default:
		return MimeTypeForPath(path)
	}
}
