package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/farmdesk/farmdesk/internal/permission"
)

const (
	cacheVersionKey = "permissions:version"
	cacheKeyPrefix  = "permissions:snapshot"
	// BumpChannel carries the committed revision whenever the matrix changes.
	BumpChannel = "permissions.bump"
)

// Cache keeps the committed snapshot in Redis under a versioned key.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the snapshot cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", cacheKeyPrefix, ver), nil
}

// Get returns the cached snapshot for the current version or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context) (*permission.Snapshot, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheMiss
	}
	key, err := c.key(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

// Put stores snap under the current version.
func (c *Cache) Put(ctx context.Context, snap *permission.Snapshot) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	key, err := c.key(ctx)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates cached snapshots and announces revision to other instances.
func (c *Cache) Bump(ctx context.Context, revision uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, revision.String()).Err()
}

// Subscribe invokes fn with each announced revision until ctx is cancelled.
func (c *Cache) Subscribe(ctx context.Context, fn func(revision uuid.UUID)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				revision, err := uuid.Parse(msg.Payload)
				if err != nil {
					continue
				}
				fn(revision)
			}
		}
	}()
	return nil
}
