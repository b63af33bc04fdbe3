package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/IQzhan/abload"
)

// RedisManifest reads the manifest document stored under one Redis key, as
// published by the build pipeline.
type RedisManifest struct {
	client *redis.Client
	key    string
}

// NewRedisManifest connects to url (redis://[password@]host:port[/db]).
func NewRedisManifest(ctx context.Context, url string, key string) (*RedisManifest, error) {
	if key == "" {
		return nil, fmt.Errorf("new redis manifest: key is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("new redis manifest: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("new redis manifest: %w", err)
	}
	return &RedisManifest{client: client, key: key}, nil
}

func (r *RedisManifest) FetchManifest(ctx context.Context) (abload.Manifest, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("manifest key %q not found", r.key)
	}
	if err != nil {
		return nil, fmt.Errorf("get manifest key %q: %w", r.key, err)
	}
	return abload.ParseManifest(data)
}

func (r *RedisManifest) Close() error {
	return r.client.Close()
}
