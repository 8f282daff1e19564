package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserLocker serialises mutating tracker operations for one user.
type UserLocker interface {
	Lock(ctx context.Context, userID int64) (func(), error)
}

var (
	_ UserLocker = (*LocalLocker)(nil)
	_ UserLocker = (*RedisLocker)(nil)
)

// LocalLocker holds one mutex per user inside this process. Entries are
// dropped once no caller holds or waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[int64]*userMutex
}

type userMutex struct {
	mu   sync.Mutex
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[int64]*userMutex)}
}

func (l *LocalLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &userMutex{}
		l.locks[userID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.mu.Lock()
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		l.release(userID, m)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Unlock()
			l.release(userID, m)
		})
	}, nil
}

func (l *LocalLocker) release(userID int64, m *userMutex) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, userID)
	}
}

// held reports how many users currently have lock entries.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// ErrLockTimeout is returned when a distributed lock could not be acquired
// within the configured wait.
var ErrLockTimeout = errors.New("timed out waiting for user lock")

// releaseLockScript deletes the key only if it still holds our token.
const releaseLockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a UserLocker shared by every instance pointed at the same
// Redis. The TTL bounds how long a crashed holder can block a user.
type RedisLocker struct {
	client  *redis.Client
	ttl     time.Duration
	wait    time.Duration
	retry   time.Duration
	release *redis.Script
}

func NewRedisLocker(client *redis.Client, ttl, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client:  client,
		ttl:     ttl,
		wait:    wait,
		retry:   25 * time.Millisecond,
		release: redis.NewScript(releaseLockScript),
	}
}

func lockKey(userID int64) string {
	return fmt.Sprintf("studytracker:lock:user:%d", userID)
}

func (l *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := lockKey(userID)
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Fresh context: the caller's may already be cancelled.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = l.release.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
