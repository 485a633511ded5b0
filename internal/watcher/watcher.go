package watcher

import (
	"time"
)

// Operation is the kind of change seen on a document.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removed file.
	OpDelete
	// OpRename is a file moved away from its path; the new path arrives as
	// its own OpCreate.
	OpRename
)

// String returns the operation name used in logs.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Removes reports whether the operation takes a file away from its path.
func (op Operation) Removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long events must be quiet before a batch is emitted.
	Debounce time.Duration

	// PollInterval is the scan interval when fsnotify is unavailable.
	PollInterval time.Duration

	// EventBufferSize bounds the number of pending batches.
	EventBufferSize int

	// Filter reports whether a file path is a document worth reporting.
	// Nil reports every file.
	Filter func(path string) bool

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the watcher defaults.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 64,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
