package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

var _ repository.JobStore = (*JobStore)(nil)

// JobStore keeps jobs and units as Redis hashes.
type JobStore struct {
	c *Client
}

func NewJobStore(c *Client) *JobStore {
	return &JobStore{c: c}
}

// counter field on the job hash for each unit status
var counterField = map[model.UnitStatus]string{
	model.UnitStatusQueued:     "queuedUnits",
	model.UnitStatusProcessing: "processingUnits",
	model.UnitStatusCompleted:  "completedUnits",
	model.UnitStatusFailed:     "failedUnits",
}

func (s *JobStore) CreateJob(ctx context.Context, job *model.Job, units []*model.WorkUnit, queue string) error {
	jobKey := s.c.keys.job(job.ID)
	n, err := s.c.cli.Exists(ctx, jobKey).Result()
	if err != nil {
		return domain.NewStoreError("create job", err)
	}
	if n > 0 {
		return domain.ErrAlreadyExists
	}

	records := make([]interface{}, 0, len(units))
	for _, u := range units {
		b, err := json.Marshal(model.DispatchRecord{JobID: u.JobID, UnitIndex: u.Index})
		if err != nil {
			return domain.NewStoreError("create job", err)
		}
		records = append(records, b)
	}

	_, err = s.c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, jobKey, jobFields(job))
		for _, u := range units {
			p.HSet(ctx, s.c.keys.unit(u.JobID, u.Index), unitFields(u))
		}
		if len(records) > 0 {
			p.LPush(ctx, s.c.keys.queue(queue), records...)
		}
		p.SAdd(ctx, s.c.keys.active(), job.ID)
		return nil
	})
	if err != nil {
		return domain.NewStoreError("create job", err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	m, err := s.c.cli.HGetAll(ctx, s.c.keys.job(jobID)).Result()
	if err != nil {
		return nil, domain.NewStoreError("get job", err)
	}
	if len(m) == 0 {
		return nil, domain.ErrNotFound
	}
	job, err := parseJob(m)
	if err != nil {
		return nil, domain.NewStoreError("get job", err)
	}
	return job, nil
}

func (s *JobStore) GetUnit(ctx context.Context, jobID string, index int) (*model.WorkUnit, error) {
	m, err := s.c.cli.HGetAll(ctx, s.c.keys.unit(jobID, index)).Result()
	if err != nil {
		return nil, domain.NewStoreError("get unit", err)
	}
	if len(m) == 0 {
		return nil, domain.ErrNotFound
	}
	u, err := parseUnit(m)
	if err != nil {
		return nil, domain.NewStoreError("get unit", err)
	}
	return u, nil
}

func (s *JobStore) ListUnits(ctx context.Context, jobID string) ([]*model.WorkUnit, error) {
	total, err := s.c.cli.HGet(ctx, s.c.keys.job(jobID), "totalUnits").Int()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewStoreError("list units", err)
	}

	cmds := make([]*redis.StringStringMapCmd, total)
	_, err = s.c.cli.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i := 0; i < total; i++ {
			cmds[i] = p.HGetAll(ctx, s.c.keys.unit(jobID, i))
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewStoreError("list units", err)
	}

	units := make([]*model.WorkUnit, 0, total)
	for _, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		u, err := parseUnit(m)
		if err != nil {
			return nil, domain.NewStoreError("list units", err)
		}
		units = append(units, u)
	}
	return units, nil
}

func (s *JobStore) SaveUnit(ctx context.Context, u *model.WorkUnit) error {
	key := s.c.keys.unit(u.JobID, u.Index)
	_, err := s.c.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, unitFields(u))
		if u.Error == "" {
			p.HDel(ctx, key, "error")
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError("save unit", err)
	}
	return nil
}

// applyTransition moves one count between counters and advances updatedAt in a
// single script run, so concurrent units of the same job cannot interleave.
//
// KEYS[1] job hash
// ARGV[1] counter to decrement ("" = none), ARGV[2] counter to increment,
// ARGV[3] updatedAt millis, ARGV[4] "1" to promote status queued -> processing
var applyTransition = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return -1
end
if ARGV[1] ~= "" then
	redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
end
redis.call("HINCRBY", KEYS[1], ARGV[2], 1)
local at = tonumber(ARGV[3])
local cur = tonumber(redis.call("HGET", KEYS[1], "updatedAt") or "0")
if at <= cur then
	at = cur + 1
end
redis.call("HSET", KEYS[1], "updatedAt", at)
if ARGV[4] == "1" and redis.call("HGET", KEYS[1], "status") == "queued" then
	redis.call("HSET", KEYS[1], "status", "processing")
end
return 1`)

func (s *JobStore) ApplyTransition(ctx context.Context, jobID string, from, to model.UnitStatus, at time.Time) error {
	toField, ok := counterField[to]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", domain.ErrInvalidArgument, to)
	}
	fromField := counterField[from] // "" when from is empty
	promote := "0"
	if to == model.UnitStatusProcessing {
		promote = "1"
	}
	res, err := applyTransition.Run(ctx, s.c.cli, []string{s.c.keys.job(jobID)},
		fromField, toField, at.UnixMilli(), promote).Int()
	if err != nil {
		return domain.NewStoreError("apply transition", err)
	}
	if res < 0 {
		return domain.ErrNotFound
	}
	return nil
}

// setCounts overwrites counters and status if updatedAt still matches.
//
// KEYS[1] job hash
// ARGV[1] expected updatedAt, ARGV[2..5] queued/processing/completed/failed,
// ARGV[6] status, ARGV[7] new updatedAt
var setCounts = redis.NewScript(`
local cur = redis.call("HGET", KEYS[1], "updatedAt")
if not cur then
	return -1
end
if cur ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1],
	"queuedUnits", ARGV[2], "processingUnits", ARGV[3],
	"completedUnits", ARGV[4], "failedUnits", ARGV[5],
	"status", ARGV[6], "updatedAt", ARGV[7])
return 1`)

func (s *JobStore) SetCounts(ctx context.Context, jobID string, c model.UnitCounts, status model.JobStatus, expect, at time.Time) error {
	res, err := setCounts.Run(ctx, s.c.cli, []string{s.c.keys.job(jobID)},
		strconv.FormatInt(expect.UnixMilli(), 10),
		c.Queued, c.Processing, c.Completed, c.Failed,
		string(status), at.UnixMilli()).Int()
	if err != nil {
		return domain.NewStoreError("set counts", err)
	}
	switch {
	case res < 0:
		return domain.ErrNotFound
	case res == 0:
		return domain.ErrConflict
	}
	return nil
}

func (s *JobStore) ListActiveJobs(ctx context.Context) ([]string, error) {
	ids, err := s.c.cli.SMembers(ctx, s.c.keys.active()).Result()
	if err != nil {
		return nil, domain.NewStoreError("list active jobs", err)
	}
	return ids, nil
}

func (s *JobStore) RetireJob(ctx context.Context, jobID string) error {
	if err := s.c.cli.SRem(ctx, s.c.keys.active(), jobID).Err(); err != nil {
		return domain.NewStoreError("retire job", err)
	}
	return nil
}

func (s *JobStore) ActivateJob(ctx context.Context, jobID string) error {
	if err := s.c.cli.SAdd(ctx, s.c.keys.active(), jobID).Err(); err != nil {
		return domain.NewStoreError("activate job", err)
	}
	return nil
}

func (s *JobStore) Ping(ctx context.Context) error {
	if err := s.c.Ping(ctx); err != nil {
		return domain.NewStoreError("ping", err)
	}
	return nil
}

// ---- hash codec ----

func jobFields(j *model.Job) map[string]interface{} {
	return map[string]interface{}{
		"id":              j.ID,
		"title":           j.Title,
		"description":     j.Description,
		"contentMode":     string(j.ContentMode),
		"status":          string(j.Status),
		"totalUnits":      j.TotalUnits,
		"queuedUnits":     j.Counts.Queued,
		"processingUnits": j.Counts.Processing,
		"completedUnits":  j.Counts.Completed,
		"failedUnits":     j.Counts.Failed,
		"createdAt":       j.CreatedAt.UnixMilli(),
		"updatedAt":       j.UpdatedAt.UnixMilli(),
	}
}

func unitFields(u *model.WorkUnit) map[string]interface{} {
	m := map[string]interface{}{
		"jobId":             u.JobID,
		"unitIndex":         u.Index,
		"title":             u.Title,
		"status":            string(u.Status),
		"content":           u.Content,
		"attempts":          u.Attempts,
		"generationRetries": u.GenerationRetries,
		"createdAt":         u.CreatedAt.UnixMilli(),
		"updatedAt":         u.UpdatedAt.UnixMilli(),
	}
	if u.Error != "" {
		m["error"] = u.Error
	}
	return m
}

// fieldReader collects the first parse failure so the codecs read top to bottom.
type fieldReader struct {
	m   map[string]string
	err error
}

func (r *fieldReader) int(name string) int {
	v, ok := r.m[name]
	if !ok || v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("field %s: %w", name, err)
	}
	return n
}

func (r *fieldReader) time(name string) time.Time {
	v, ok := r.m[name]
	if !ok || v == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("field %s: %w", name, err)
		}
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func parseJob(m map[string]string) (*model.Job, error) {
	r := &fieldReader{m: m}
	j := &model.Job{
		ID:          m["id"],
		Title:       m["title"],
		Description: m["description"],
		ContentMode: model.ContentMode(m["contentMode"]),
		Status:      model.JobStatus(m["status"]),
		TotalUnits:  r.int("totalUnits"),
		Counts: model.UnitCounts{
			Queued:     r.int("queuedUnits"),
			Processing: r.int("processingUnits"),
			Completed:  r.int("completedUnits"),
			Failed:     r.int("failedUnits"),
		},
		CreatedAt: r.time("createdAt"),
		UpdatedAt: r.time("updatedAt"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if j.ID == "" {
		return nil, errors.New("job hash without id")
	}
	return j, nil
}

func parseUnit(m map[string]string) (*model.WorkUnit, error) {
	r := &fieldReader{m: m}
	u := &model.WorkUnit{
		JobID:             m["jobId"],
		Index:             r.int("unitIndex"),
		Title:             m["title"],
		Status:            model.UnitStatus(m["status"]),
		Content:           m["content"],
		Error:             m["error"],
		Attempts:          r.int("attempts"),
		GenerationRetries: r.int("generationRetries"),
		CreatedAt:         r.time("createdAt"),
		UpdatedAt:         r.time("updatedAt"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if !u.Status.Valid() {
		return nil, fmt.Errorf("unit %s/%d has unknown status %q", u.JobID, u.Index, u.Status)
	}
	return u, nil
}
