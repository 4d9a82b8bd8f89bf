package memstore

import (
	"context"
	"sync"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
)

var _ repository.DispatchQueue = (*Queue)(nil)

// Queue is a FIFO slice. Waiting consumers are woken by closing the current wake
// channel on every push.
type Queue struct {
	mu    sync.Mutex
	items []model.DispatchRecord
	wake  chan struct{}
}

func newQueue() *Queue {
	return &Queue{wake: make(chan struct{})}
}

func (q *Queue) Push(ctx context.Context, rec model.DispatchRecord) error {
	q.pushAll([]model.DispatchRecord{rec})
	return nil
}

func (q *Queue) pushAll(recs []model.DispatchRecord) {
	if len(recs) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, recs...)
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()
}

func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (model.DispatchRecord, error) {
	var timer *time.Timer
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
	}
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			rec := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return rec, nil
		}
		wake := q.wake
		q.mu.Unlock()

		if timer == nil {
			return model.DispatchRecord{}, domain.ErrQueueEmpty
		}
		select {
		case <-wake:
		case <-timer.C:
			return model.DispatchRecord{}, domain.ErrQueueEmpty
		case <-ctx.Done():
			return model.DispatchRecord{}, ctx.Err()
		}
	}
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
