// Package distlock keeps two scheduler processes from scoring the same
// trainer, or dispatching the same campaigns, at the same time.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/coach-nudge/internal/pkg/logger"
)

var (
	// ErrNotAcquired is returned by WithLock when another holder owns the lock.
	ErrNotAcquired = errors.New("lock held by another worker")

	// ErrLockLost is returned by Extend when the lock expired or was taken
	// by another holder.
	ErrLockLost = errors.New("lock no longer owned")
)

// DistLock is the interface for distributed locking.
// Implementations must be safe for use from a single goroutine;
// concurrent use across goroutines requires separate lock instances.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks that expire unless refreshed.
type Extender interface {
	TTL() time.Duration
	Extend(ctx context.Context, ttl time.Duration) error
}

// Factory creates locks by key using the best available backend.
type Factory struct {
	redis *redis.Client
	db    *sql.DB
	ttl   time.Duration
}

// NewFactory returns a factory that prefers Redis and falls back to
// PostgreSQL advisory locks when redisClient is nil.
func NewFactory(redisClient *redis.Client, db *sql.DB, ttl time.Duration) *Factory {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Factory{redis: redisClient, db: db, ttl: ttl}
}

// New creates a lock for key.
func (f *Factory) New(key string) DistLock {
	if f.redis != nil {
		return NewRedisLock(f.redis, key, f.ttl)
	}
	return NewPGAdvisoryLock(f.db, key)
}

// TrainerRunKey is the lock key for one trainer's scoring run.
func TrainerRunKey(trainerID string) string { return "nudge:run:" + trainerID }

// DispatchKey is the lock key for the campaign dispatcher.
const DispatchKey = "nudge:dispatch"

// WithLock runs fn while holding l. It returns ErrNotAcquired without
// calling fn if the lock is taken. Locks that expire are extended every
// half TTL while fn runs; if ownership is lost, fn's context is cancelled.
// Release uses a fresh context so a cancelled run still frees the lock.
func WithLock(ctx context.Context, l DistLock, fn func(context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrNotAcquired
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(rctx)
	}()

	ext, ok := l.(Extender)
	if !ok || ext.TTL() <= 0 {
		return fn(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		heartbeat(runCtx, ext, cancel)
	}()
	defer func() {
		cancel()
		<-stopped
	}()

	return fn(runCtx)
}

func heartbeat(ctx context.Context, l Extender, cancel context.CancelFunc) {
	ticker := time.NewTicker(l.TTL() / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Extend(ctx, l.TTL())
			if errors.Is(err, ErrLockLost) {
				logger.Error("lock lost during run", "error", err)
				cancel()
				return
			}
			if err != nil && ctx.Err() == nil {
				logger.Warn("lock extend failed", "error", err)
			}
		}
	}
}

// PGAdvisoryLock implements DistLock using session-scoped PostgreSQL
// advisory locks. The lock disappears with the connection if the worker dies.
type PGAdvisoryLock struct {
	db     *sql.DB
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{db: db, lockID: int64(h.Sum64())}
}

// Acquire tries pg_try_advisory_lock on a dedicated connection, since
// advisory locks belong to the session that took them.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks and returns the connection to the pool.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
