// Package logging configures slog for docsearch: JSON records written to a
// size-rotated file under ~/.docsearch/logs, optionally mirrored to stderr.
// Nothing here ever writes to stdout, which the stdio server reserves for
// protocol lines.
package logging
