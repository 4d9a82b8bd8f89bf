//go:build integration

package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"ebook-queue/internal/config"
	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	prefix := "ebooktest:" + uuid.NewString()[:8] + ":"
	c, err := NewClient(context.Background(), &config.RedisConfig{URL: url}, prefix)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		iter := c.cli.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			c.cli.Del(ctx, iter.Val())
		}
		_ = c.Close()
	})
	return c
}

func createJob(t *testing.T, s *JobStore, id string, n int) {
	t.Helper()
	now := time.Now()
	job := model.NewJob(id, "Title", "Desc", model.ContentModeMedium, n, now)
	units := make([]*model.WorkUnit, n)
	for i := range units {
		units[i] = model.NewWorkUnit(id, i, "Page", now)
	}
	require.NoError(t, s.CreateJob(context.Background(), job, units, "pages"))
}

func TestJobStore_CreateReadBack(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	s := NewJobStore(c)
	createJob(t, s, "job1", 3)

	j, err := s.GetJob(ctx, "job1")
	require.NoError(t, err)
	require.Equal(t, 3, j.TotalUnits)
	require.Equal(t, model.UnitCounts{Queued: 3}, j.Counts)
	require.Equal(t, model.JobStatusQueued, j.Status)

	units, err := s.ListUnits(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, units, 3)
	for i, u := range units {
		require.Equal(t, i, u.Index)
		require.Equal(t, model.UnitStatusQueued, u.Status)
	}

	q := NewQueue(c, "pages")
	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	_, err = s.GetJob(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
	require.ErrorIs(t, s.CreateJob(ctx, j, nil, "pages"), domain.ErrAlreadyExists)
}

func TestQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	createJob(t, NewJobStore(c), "job2", 3)
	q := NewQueue(c, "pages")

	for i := 0; i < 3; i++ {
		rec, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.Equal(t, i, rec.UnitIndex)
	}
	_, err := q.Pop(ctx, 0)
	require.ErrorIs(t, err, domain.ErrQueueEmpty)
	_, err = q.Pop(ctx, time.Second)
	require.ErrorIs(t, err, domain.ErrQueueEmpty)
}

func TestQueue_MalformedRecordIsStoreError(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	q := NewQueue(c, "bad")
	require.NoError(t, c.cli.LPush(ctx, q.key, "{not json").Err())
	_, err := q.Pop(ctx, 0)
	require.True(t, domain.IsStoreError(err))
}

func TestJobStore_ConcurrentTransitionsKeepSum(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)
	s := NewJobStore(c)
	createJob(t, s, "job3", 40)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.ApplyTransition(ctx, "job3", model.UnitStatusQueued, model.UnitStatusProcessing, time.Now()))
			require.NoError(t, s.ApplyTransition(ctx, "job3", model.UnitStatusProcessing, model.UnitStatusCompleted, time.Now()))
		}()
	}
	wg.Wait()

	j, err := s.GetJob(ctx, "job3")
	require.NoError(t, err)
	require.Equal(t, model.UnitCounts{Completed: 40}, j.Counts)
	require.Equal(t, model.JobStatusProcessing, j.Status)
}

func TestChunkCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := NewChunkCache(newTestClient(t), time.Minute)

	_, err := cc.Get(ctx, "j", 1, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, cc.PutPartial(ctx, "j", 1, 0, "par"))
	e, err := cc.Get(ctx, "j", 1, 0)
	require.NoError(t, err)
	require.Equal(t, "par", e.Partial)

	require.NoError(t, cc.PutFinal(ctx, "j", 1, 0, "fin"))
	e, err = cc.Get(ctx, "j", 1, 0)
	require.NoError(t, err)
	require.Equal(t, "fin", e.Final)
	require.Empty(t, e.Partial)

	require.NoError(t, cc.Clear(ctx, "j", 1))
	_, err = cc.Get(ctx, "j", 1, 0)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLocker_TokenGuardsUnlock(t *testing.T) {
	ctx := context.Background()
	l := NewLocker(newTestClient(t))
	tok, err := l.TryLock(ctx, "reconciler", time.Minute)
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "reconciler", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockNotAcquired)

	require.NoError(t, l.Unlock(ctx, "reconciler", tok))
	_, err = l.TryLock(ctx, "reconciler", time.Minute)
	require.NoError(t, err)
}
