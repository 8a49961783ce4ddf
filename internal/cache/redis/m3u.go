// Package redis keeps fetched stream playlists in Redis so several client
// processes can share them.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "torrserve:m3u:"
	DefaultTTL = 6 * time.Hour
)

// M3UStore stores playlists as plain strings keyed by torrent hash.
type M3UStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewM3UStore(client *redis.Client, ttl time.Duration) *M3UStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &M3UStore{client: client, ttl: ttl}
}

func key(hash string) string {
	return keyPrefix + hash
}

func (s *M3UStore) Load(ctx context.Context, hash string) (string, bool, error) {
	playlist, err := s.client.Get(ctx, key(hash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return playlist, true, nil
}

func (s *M3UStore) Store(ctx context.Context, hash, playlist string) error {
	return s.client.Set(ctx, key(hash), playlist, s.ttl).Err()
}

func (s *M3UStore) Delete(ctx context.Context, hash string) error {
	return s.client.Del(ctx, key(hash)).Err()
}

func (s *M3UStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
