package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/adbroll/matcher/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still carries our token
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// refreshScript extends the TTL only when the key still carries our token
var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLocker hands out leases shared by every matcher instance using the same Redis
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// NewRedisLocker creates a new Redis-backed locker
func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "adbroll:lease:"
	}
	return &RedisLocker{
		rdb:       rdb,
		keyPrefix: keyPrefix,
	}
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// Acquire sets the key with SET NX. It fails with ErrLeaseNotAcquired when already held.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (domain.Lock, error) {
	leaseKey := l.keyPrefix + key
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, leaseKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, domain.ErrLeaseNotAcquired
	}

	return &redisLock{rdb: l.rdb, key: leaseKey, token: token}, nil
}

type redisLock struct {
	rdb   redis.UniversalClient
	key   string
	token string
}

// Refresh resets the key TTL if this lock still owns it
func (lock *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	result, err := refreshScript.Run(ctx, lock.rdb, []string{lock.key}, lock.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return domain.ErrLeaseNotHeld
	}
	return nil
}

// Release deletes the key if this lock still owns it
func (lock *redisLock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lock.rdb, []string{lock.key}, lock.token).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return domain.ErrLeaseNotHeld
	}
	return nil
}
