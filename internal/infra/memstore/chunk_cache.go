package memstore

import (
	"context"
	"sync"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/repository"
)

var _ repository.ChunkCache = (*ChunkCache)(nil)

type chunkKey struct {
	job   string
	unit  int
	chunk int
}

type ChunkCache struct {
	mu      sync.Mutex
	entries map[chunkKey]repository.ChunkEntry
}

func NewChunkCache() *ChunkCache {
	return &ChunkCache{entries: make(map[chunkKey]repository.ChunkEntry)}
}

func (c *ChunkCache) Get(ctx context.Context, jobID string, unit, chunk int) (repository.ChunkEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[chunkKey{jobID, unit, chunk}]
	if !ok || (e.Final == "" && e.Partial == "") {
		return repository.ChunkEntry{}, domain.ErrNotFound
	}
	return e, nil
}

func (c *ChunkCache) PutPartial(ctx context.Context, jobID string, unit, chunk int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := chunkKey{jobID, unit, chunk}
	e := c.entries[k]
	e.Partial = text
	c.entries[k] = e
	return nil
}

func (c *ChunkCache) PutFinal(ctx context.Context, jobID string, unit, chunk int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[chunkKey{jobID, unit, chunk}] = repository.ChunkEntry{Final: text}
	return nil
}

func (c *ChunkCache) Clear(ctx context.Context, jobID string, unit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.job == jobID && k.unit == unit {
			delete(c.entries, k)
		}
	}
	return nil
}
