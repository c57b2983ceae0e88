package cas

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"go.trai.ch/trellis/internal/core/domain"
	"go.trai.ch/zerr"
)

// lockRetryDelay is how long Lock waits before probing the slots again.
const lockRetryDelay = 50 * time.Millisecond

// Lock takes one of limit lock files named after key under the state
// directory. The locks are advisory file locks, so they hold across processes
// and across Store instances within one process.
func (s *Store) Lock(ctx context.Context, root, key string, limit int) (func(), error) {
	if limit < 1 {
		limit = 1
	}

	dir := domain.LocksPath(root)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	base := filepath.Join(dir, hashKey(key))
	for {
		for slot := range limit {
			fl := flock.New(base + "-" + strconv.Itoa(slot) + ".lock")
			locked, err := fl.TryLock()
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, domain.ErrStoreLockFailed.Error()), "key", key)
			}
			if locked {
				return func() { _ = fl.Unlock() }, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
}

// withFileLock runs fn while holding an exclusive lock on filename's lock file.
func withFileLock(filename string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(filename), domain.DirPerm); err != nil {
		return zerr.Wrap(err, domain.ErrStoreCreateFailed.Error())
	}

	fl := flock.New(filename + ".lock")
	if err := fl.Lock(); err != nil {
		return zerr.Wrap(err, domain.ErrStoreLockFailed.Error())
	}
	defer fl.Unlock() //nolint:errcheck // Closing the descriptor drops the lock regardless

	return fn()
}
