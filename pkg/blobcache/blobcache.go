// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobcache is a read-through Redis cache in front of a storage
// backend. Payloads are immutable and content addressed, so cached entries
// never go stale; eviction is purely a capacity concern handled by Redis.
package blobcache

import (
	"context"
	"errors"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/logger"
	"github.com/C-0711/Vaultclaw/pkg/storage"
	"github.com/C-0711/Vaultclaw/pkg/types"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds cache configuration.
type Config struct {
	// Backend is the authoritative payload store.
	Backend storage.Backend

	// Client is the Redis client used for caching.
	Client *redis.Client

	// TTL bounds how long a payload stays cached (default: 1 hour).
	TTL time.Duration

	// MaxPayloadSize skips caching for payloads larger than this
	// (default: 4 MiB).
	MaxPayloadSize int
}

// Cache wraps a storage backend with a Redis read-through layer.
// It implements storage.Backend.
type Cache struct {
	backend storage.Backend
	client  *redis.Client
	ttl     time.Duration
	maxSize int
}

// New creates a Cache. The backend is required; a nil client disables
// caching and passes every call through.
func New(cfg Config) (*Cache, error) {
	if cfg.Backend == nil {
		return nil, errors.New("Backend is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = 4 * 1024 * 1024
	}
	return &Cache{
		backend: cfg.Backend,
		client:  cfg.Client,
		ttl:     cfg.TTL,
		maxSize: cfg.MaxPayloadSize,
	}, nil
}

func cacheKey(space uuid.UUID, id types.ChunkID) string {
	return "chunk:" + space.String() + ":" + id.String()
}

func (c *Cache) Write(ctx context.Context, space uuid.UUID, id types.ChunkID, payload []byte) error {
	return c.backend.Write(ctx, space, id, payload)
}

func (c *Cache) Read(ctx context.Context, space uuid.UUID, id types.ChunkID) ([]byte, error) {
	if c.client == nil {
		return c.backend.Read(ctx, space, id)
	}

	key := cacheKey(space, id)
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		// Cache trouble is not a read failure; fall through to the backend.
		logger.Warn().Err(err).Str("chunk_id", id.String()).Msg("blobcache read failed")
	}

	payload, err = c.backend.Read(ctx, space, id)
	if err != nil {
		return nil, err
	}

	if len(payload) <= c.maxSize {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			logger.Warn().Err(err).Str("chunk_id", id.String()).Msg("blobcache fill failed")
		}
	}
	return payload, nil
}

func (c *Cache) Delete(ctx context.Context, space uuid.UUID, id types.ChunkID) error {
	if c.client != nil {
		if err := c.client.Del(ctx, cacheKey(space, id)).Err(); err != nil {
			logger.Warn().Err(err).Str("chunk_id", id.String()).Msg("blobcache invalidate failed")
		}
	}
	return c.backend.Delete(ctx, space, id)
}

func (c *Cache) Has(ctx context.Context, space uuid.UUID, id types.ChunkID) (bool, error) {
	return c.backend.Has(ctx, space, id)
}
