package redis

import (
	"context"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.ChunkCache = (*ChunkCache)(nil)

// ChunkCache stores one hash per unit: field "n" is the final text of chunk n,
// "n:partial" the latest streamed partial. The hash expires after ttl of inactivity.
type ChunkCache struct {
	c   *Client
	ttl time.Duration
}

func NewChunkCache(c *Client, ttl time.Duration) *ChunkCache {
	return &ChunkCache{c: c, ttl: ttl}
}

func (cc *ChunkCache) Get(ctx context.Context, jobID string, unit, chunk int) (repository.ChunkEntry, error) {
	vals, err := cc.c.cli.HMGet(ctx, cc.c.keys.chunks(jobID, unit), chunkField(chunk), partialField(chunk)).Result()
	if err != nil {
		return repository.ChunkEntry{}, domain.NewStoreError("chunk get", err)
	}
	var e repository.ChunkEntry
	if s, ok := vals[0].(string); ok {
		e.Final = s
	}
	if s, ok := vals[1].(string); ok {
		e.Partial = s
	}
	if e.Final == "" && e.Partial == "" {
		return repository.ChunkEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (cc *ChunkCache) PutPartial(ctx context.Context, jobID string, unit, chunk int, text string) error {
	return cc.put(ctx, jobID, unit, func(p redis.Pipeliner, key string) {
		p.HSet(ctx, key, partialField(chunk), text)
	})
}

// PutFinal replaces any partial for the chunk.
func (cc *ChunkCache) PutFinal(ctx context.Context, jobID string, unit, chunk int, text string) error {
	return cc.put(ctx, jobID, unit, func(p redis.Pipeliner, key string) {
		p.HSet(ctx, key, chunkField(chunk), text)
		p.HDel(ctx, key, partialField(chunk))
	})
}

func (cc *ChunkCache) Clear(ctx context.Context, jobID string, unit int) error {
	if err := cc.c.cli.Del(ctx, cc.c.keys.chunks(jobID, unit)).Err(); err != nil {
		return domain.NewStoreError("chunk clear", err)
	}
	return nil
}

func (cc *ChunkCache) put(ctx context.Context, jobID string, unit int, fn func(p redis.Pipeliner, key string)) error {
	key := cc.c.keys.chunks(jobID, unit)
	_, err := cc.c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		fn(p, key)
		if cc.ttl > 0 {
			p.Expire(ctx, key, cc.ttl)
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError("chunk put", err)
	}
	return nil
}
