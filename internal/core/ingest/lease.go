package ingest

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards a document's processing run against concurrent redeliveries
// that the status check alone cannot catch (the other run may not have
// claimed the row yet, or may have died mid-claim).
type Locker interface {
	// Acquire returns false when another run currently holds the document.
	Acquire(ctx context.Context, documentID string) (bool, error)
	Release(ctx context.Context, documentID string)
}

// RedisLease implements Locker with SET NX and a TTL. The TTL doubles as the
// staleness window: a run that dies without releasing frees the document
// once the lease expires.
type RedisLease struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLease{client: client, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context, documentID string) (bool, error) {
	return l.client.SetNX(ctx, leaseKey(documentID), "1", l.ttl).Result()
}

func (l *RedisLease) Release(ctx context.Context, documentID string) {
	_ = l.client.Del(ctx, leaseKey(documentID)).Err()
}

func leaseKey(documentID string) string {
	return "ingest:lease:" + documentID
}
