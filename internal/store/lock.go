package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	docerrors "github.com/Aman-CERP/docsearch/internal/errors"
)

// lockRetryDelay is how often a contended snapshot lock is retried.
const lockRetryDelay = 50 * time.Millisecond

// dirLock guards a snapshot directory across processes. Writers hold it while
// writing and renaming the snapshot pair; loaders hold it too, since a load
// may finish an interrupted commit.
type dirLock struct {
	path  string
	flock *flock.Flock
}

func newDirLock(dir string) *dirLock {
	path := filepath.Join(dir, ".snapshot.lock")
	return &dirLock{path: path, flock: flock.New(path)}
}

// Lock acquires the exclusive lock, waiting until ctx ends.
func (l *dirLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !ok {
		return docerrors.New(docerrors.ErrCodeIndexLocked,
			"vector store is locked by another process", ctx.Err()).
			WithDetail("lock", l.path).
			WithSuggestion("Wait for the other docsearch process to finish writing and retry")
	}
	return nil
}

// Unlock releases the lock.
func (l *dirLock) Unlock() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
