/*
Package rediscache provides a Redis-backed interest.SnapshotCache.

KEYS:
  interest:snapshot:<loan-id>  JSON-encoded interest.Snapshot, with TTL

A snapshot answers a quote only while its LoanVersion and AsOf match the
request (interest.Snapshot.Matches); the TTL just bounds memory. The lending
service deletes the key after every committed payment.
*/
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/debt-ledger/interest"
)

const keyPrefix = "interest:snapshot:"

var _ interest.SnapshotCache = (*Cache)(nil)

type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// New wraps an existing client. A zero ttl stores keys without expiry.
func New(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Dial connects with opts and verifies the connection with PING.
// The caller owns the returned client and closes it on shutdown.
func Dial(ctx context.Context, opts *redis.Options, ttl time.Duration) (*Cache, *redis.Client, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return New(client, ttl), client, nil
}

func Key(id interest.LoanID) string {
	return keyPrefix + string(id)
}

// Get returns (nil, nil) when no snapshot is stored.
func (c *Cache) Get(ctx context.Context, id interest.LoanID) (*interest.Snapshot, error) {
	raw, err := c.client.Get(ctx, Key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot %s: %w", id, err)
	}

	var snap interest.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (c *Cache) Put(ctx context.Context, snapshot interest.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", snapshot.LoanID, err)
	}
	if err := c.client.Set(ctx, Key(snapshot.LoanID), string(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot %s: %w", snapshot.LoanID, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context, id interest.LoanID) error {
	if err := c.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("redis del snapshot %s: %w", id, err)
	}
	return nil
}
