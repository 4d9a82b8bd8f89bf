// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"ebook-queue/internal/infra/logging"

	"github.com/rs/zerolog"
)

// Loop is a long-running body executed by every pool goroutine.
type Loop func(ctx context.Context)

// Pool runs N copies of a Loop. A loop that panics or returns early is restarted
// after a short delay until ctx ends.
type Pool struct {
	wg           sync.WaitGroup
	n            int
	restartDelay time.Duration
	log          *zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{n: workers, restartDelay: time.Second, log: &l}
}

func (p *Pool) Size() int { return p.n }

func (p *Pool) Start(ctx context.Context, loop Loop) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			wctx := logging.WithWorkerID(ctx, id)
			for {
				if err := p.runSafe(wctx, loop); err != nil {
					p.log.Error().Err(err).Int("worker_id", id).Msg("worker loop crashed")
				}
				if ctx.Err() != nil {
					return
				}
				p.log.Warn().Int("worker_id", id).Dur("delay", p.restartDelay).Msg("restarting worker loop")
				sleep(ctx, p.restartDelay)
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Msg("worker pool started")
}

// Wait blocks until every loop has returned; cancel the Start context first.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runSafe(ctx context.Context, loop Loop) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	loop(ctx)
	return nil
}
