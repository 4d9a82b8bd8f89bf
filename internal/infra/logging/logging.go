package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"ebook-queue/internal/config"

	"github.com/rs/zerolog"
)

// New builds the process logger. Unknown levels fall back to info; dev forces
// the console writer and disables sampling.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stdout
	if dev || strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	}
	base := zerolog.New(w).With().Timestamp().Str("service", "ebookq").Logger()

	if cfg.Sampling && !dev {
		// keep 1 of every 100 debug-and-below lines; warnings always pass.
		sampled := base.Sample(zerolog.LevelSampler{
			TraceSampler: &zerolog.BasicSampler{N: 100},
			DebugSampler: &zerolog.BasicSampler{N: 100},
		})
		return &sampled
	}
	return &base
}

type ctxKey string

const (
	ctxTraceID   ctxKey = "trace_id"
	ctxJobID     ctxKey = "job_id"
	ctxUnitIndex ctxKey = "unit_index"
	ctxWorkerID  ctxKey = "worker_id"
)

// With attaches the ids carried by ctx (trace_id, job_id, unit_index, worker_id).
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	l := base.With()
	if v, ok := ctx.Value(ctxTraceID).(string); ok {
		l = l.Str("trace_id", v)
	}
	if v, ok := ctx.Value(ctxJobID).(string); ok {
		l = l.Str("job_id", v)
	}
	if v, ok := ctx.Value(ctxUnitIndex).(int); ok {
		l = l.Int("unit_index", v)
	}
	if v, ok := ctx.Value(ctxWorkerID).(int); ok {
		l = l.Int("worker_id", v)
	}
	logger := l.Logger()
	return &logger
}

// TraceDuration is used as `defer logging.TraceDuration(log, "Op")()`.
func TraceDuration(logger *zerolog.Logger, op string) func() {
	began := time.Now()
	logger.Trace().Str("op", op).Msg("enter")
	return func() {
		logger.Trace().Str("op", op).Dur("took", time.Since(began)).Msg("leave")
	}
}

// Redact masks a credential for log output unless dev is set.
func Redact(secret string, dev bool) string {
	switch {
	case dev:
		return secret
	case len(secret) < 10:
		return strings.Repeat("*", len(secret))
	}
	return secret[:3] + strings.Repeat("*", 6) + secret[len(secret)-2:]
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxJobID, id)
}
func WithUnit(ctx context.Context, jobID string, index int) context.Context {
	return context.WithValue(WithJobID(ctx, jobID), ctxUnitIndex, index)
}
func WithWorkerID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, ctxWorkerID, id)
}

// TraceID returns the trace id stored by WithTraceID, or "".
func TraceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxTraceID).(string)
	return v
}
