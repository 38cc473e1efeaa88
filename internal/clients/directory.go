package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "clients:version"

// Directory resolves clients through a Redis read-through cache. Keys embed a
// global version so that a single INCR invalidates every cached record.
type Directory struct {
	repo   Repository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewDirectory wires the directory. A nil redis client disables caching.
func NewDirectory(repo Repository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{repo: repo, client: client, ttl: ttl, logger: logger}
}

// ResolveClient returns the live client record or ErrNotFound.
func (d *Directory) ResolveClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	v, err, _ := d.group.Do(id.String(), func() (interface{}, error) {
		return d.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	c := v.(Client)
	return &c, nil
}

func (d *Directory) fetch(ctx context.Context, id uuid.UUID) (Client, error) {
	if d.client == nil {
		return d.load(ctx, id)
	}
	key, err := d.key(ctx, id)
	if err != nil {
		d.logger.Warn("client cache version", slog.Any("error", err))
		return d.load(ctx, id)
	}
	payload, err := d.client.Get(ctx, key).Bytes()
	if err == nil {
		var c Client
		if err := json.Unmarshal(payload, &c); err == nil {
			return c, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.logger.Warn("client cache get", slog.String("key", key), slog.Any("error", err))
	}
	c, err := d.load(ctx, id)
	if err != nil {
		return Client{}, err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return Client{}, err
	}
	if err := d.client.Set(ctx, key, raw, d.ttl).Err(); err != nil {
		d.logger.Warn("client cache set", slog.String("key", key), slog.Any("error", err))
	}
	return c, nil
}

func (d *Directory) load(ctx context.Context, id uuid.UUID) (Client, error) {
	c, err := d.repo.Get(ctx, id)
	if err != nil {
		return Client{}, err
	}
	return *c, nil
}

func (d *Directory) key(ctx context.Context, id uuid.UUID) (string, error) {
	ver, err := d.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := d.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return "", err
		}
		ver = 1
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("clients:%s:%d", id, ver), nil
}

// Invalidate bumps the cache version.
func (d *Directory) Invalidate(ctx context.Context) error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Incr(ctx, cacheVersionKey).Err()
}
