package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.DispatchQueue = (*Queue)(nil)

// Queue is a FIFO list: producers LPUSH, consumers (B)RPOP. Removal by the pop
// is the hand-off of a unit to exactly one worker.
type Queue struct {
	c   *Client
	key string
}

func NewQueue(c *Client, name string) *Queue {
	return &Queue{c: c, key: c.keys.queue(name)}
}

func (q *Queue) Push(ctx context.Context, rec model.DispatchRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return domain.NewStoreError("push", err)
	}
	if err := q.c.cli.LPush(ctx, q.key, b).Err(); err != nil {
		return domain.NewStoreError("push", err)
	}
	return nil
}

// Pop uses RPOP when timeout is zero and BRPOP otherwise.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (model.DispatchRecord, error) {
	var raw string
	if timeout <= 0 {
		v, err := q.c.cli.RPop(ctx, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return model.DispatchRecord{}, domain.ErrQueueEmpty
		}
		if err != nil {
			return model.DispatchRecord{}, domain.NewStoreError("pop", err)
		}
		raw = v
	} else {
		v, err := q.c.cli.BRPop(ctx, timeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			return model.DispatchRecord{}, domain.ErrQueueEmpty
		}
		if err != nil {
			if ctx.Err() != nil {
				return model.DispatchRecord{}, ctx.Err()
			}
			return model.DispatchRecord{}, domain.NewStoreError("pop", err)
		}
		// [key, value]
		if len(v) != 2 {
			return model.DispatchRecord{}, domain.NewStoreError("pop", fmt.Errorf("unexpected BRPOP reply of %d items", len(v)))
		}
		raw = v[1]
	}
	return decodeRecord(raw)
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.c.cli.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, domain.NewStoreError("queue len", err)
	}
	return n, nil
}

func decodeRecord(raw string) (model.DispatchRecord, error) {
	var rec model.DispatchRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.DispatchRecord{}, domain.NewStoreError("decode dispatch record", err)
	}
	if rec.JobID == "" || rec.UnitIndex < 0 {
		return model.DispatchRecord{}, domain.NewStoreError("decode dispatch record", fmt.Errorf("invalid record %q", raw))
	}
	return rec, nil
}
