package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Poller detects document changes by rescanning the root on an interval.
// It serves mounts where fsnotify delivers nothing, such as network shares.
type Poller struct {
	interval time.Duration
	filter   func(path string) bool
	state    map[string]snapshot
	events   chan FileEvent
	errors   chan error
	stopCh   chan struct{}
	root     string

	mu      sync.Mutex
	stopped bool
}

type snapshot struct {
	modTime time.Time
	size    int64
}

// NewPoller returns a poller that reports files accepted by filter.
func NewPoller(interval time.Duration, filter func(string) bool) *Poller {
	return &Poller{
		interval: interval,
		filter:   filter,
		state:    make(map[string]snapshot),
		events:   make(chan FileEvent, 256),
		errors:   make(chan error, 8),
		stopCh:   make(chan struct{}),
	}
}

// Start records a baseline and then scans every interval until ctx ends or
// Stop is called.
func (p *Poller) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve poll root: %w", err)
	}
	p.root = abs

	baseline, err := p.scan()
	if err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}
	p.mu.Lock()
	p.state = baseline
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = p.Stop()
			return ctx.Err()
		case <-p.stopCh:
			return nil
		case <-ticker.C:
			if err := p.Poll(); err != nil {
				p.emitError(err)
			}
		}
	}
}

// Poll compares the tree with the last scan and emits the differences.
func (p *Poller) Poll() error {
	current, err := p.scan()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	for path, snap := range current {
		prev, ok := p.state[path]
		switch {
		case !ok:
			p.emit(FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case prev != snap:
			p.emit(FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	p.state = current
	return nil
}

func (p *Poller) scan() (map[string]snapshot, error) {
	out := make(map[string]snapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != p.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if p.filter != nil && !p.filter(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return nil
		}
		out[filepath.ToSlash(rel)] = snapshot{modTime: info.ModTime(), size: info.Size()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", p.root, err)
	}
	return out, nil
}

// emit must be called with mu held.
func (p *Poller) emit(ev FileEvent) {
	if p.stopped {
		return
	}
	select {
	case p.events <- ev:
	default:
		slog.Warn("poll event dropped", slog.String("path", ev.Path), slog.String("op", ev.Operation.String()))
	}
}

func (p *Poller) emitError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	select {
	case p.errors <- err:
	default:
	}
}

// Events returns detected changes.
func (p *Poller) Events() <-chan FileEvent { return p.events }

// Errors returns scan failures.
func (p *Poller) Errors() <-chan error { return p.errors }

// Stop ends polling. Safe to call more than once.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return nil
	}
	p.stopped = true
	close(p.stopCh)
	close(p.events)
	close(p.errors)
	return nil
}
