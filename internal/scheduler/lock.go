package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"jobs-etl/internal/errs"
	"jobs-etl/internal/infrastructure/cache"
	"jobs-etl/internal/pkg/logging"

	"github.com/google/uuid"
)

const lockKey = "etl:run:lock"

var ErrRunInProgress = errs.RunInProgress("a pipeline run is already in progress")

type Locker interface {
	// Acquire returns a release func, or ErrRunInProgress when another run
	// holds the lock.
	Acquire(ctx context.Context) (func(), error)
}

type lockStore interface {
	SetIfNotExists(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	DeleteIfValue(ctx context.Context, key, value string) (bool, error)
}

// RunLock admits one run at a time: in-process with a mutex and across
// processes with a Redis key that expires after ttl. Without Redis only the
// in-process guard applies.
type RunLock struct {
	store  lockStore
	ttl    time.Duration
	logger *logging.Logger

	local sync.Mutex
}

func NewRunLock(store lockStore, ttl time.Duration, logger *logging.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RunLock{store: store, ttl: ttl, logger: logger}
}

func (l *RunLock) Acquire(ctx context.Context) (func(), error) {
	if !l.local.TryLock() {
		return nil, ErrRunInProgress
	}

	if l.store == nil {
		return l.local.Unlock, nil
	}

	token := uuid.NewString()
	ok, err := l.store.SetIfNotExists(ctx, lockKey, token, l.ttl)
	switch {
	case errors.Is(err, cache.ErrUnavailable):
		l.logger.Warn("run lock degraded to in-process", "reason", "redis unavailable")
		return l.local.Unlock, nil
	case err != nil:
		l.local.Unlock()
		return nil, fmt.Errorf("acquire run lock: %w", err)
	case !ok:
		l.local.Unlock()
		return nil, ErrRunInProgress
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := l.store.DeleteIfValue(ctx, lockKey, token); err != nil {
			l.logger.Warn("release run lock", "error", err)
		}
		l.local.Unlock()
	}, nil
}
