package apiv1

import (
	"context"
	"reflect"
	"strings"
	"time"

	"ebook-queue/internal/infra/worker"
	"ebook-queue/internal/usecase"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	defaultPageCount = 10
	defaultDrain     = 1
	defaultPageSize  = 20
	maxPageSize      = 100
)

// Drainer processes up to n dispatch records synchronously.
type Drainer interface {
	Drain(ctx context.Context, n int) ([]worker.Result, error)
}

// RateLimiter is satisfied by the redis and memstore limiters.
type RateLimiter interface {
	Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (bool, error)
}

// Deps are the use cases behind the v1 routes. Worker, Limiter and Auth may be nil.
type Deps struct {
	Registry usecase.JobRegistry
	Outline  usecase.OutlineUseCase
	Export   usecase.ExportUseCase
	Library  usecase.LibraryUseCase
	Worker   Drainer
	Limiter  RateLimiter
	Auth     *Auth

	CreateLimit    int
	CreateWindow   time.Duration
	RequestTimeout time.Duration // public routes; 0 disables
	MaxDrain       int
	DrainTimeout   time.Duration // per record drained by /worker/run
}

type Server struct {
	deps     Deps
	validate *validator.Validate
	log      *zerolog.Logger
}

func NewServer(deps Deps, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if deps.MaxDrain <= 0 {
		deps.MaxDrain = 25
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = 5 * time.Minute
	}
	if deps.CreateWindow <= 0 {
		deps.CreateWindow = time.Minute
	}
	v := validator.New()
	// report json names in validation errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	l := logger.With().Str("component", "apiv1").Logger()
	return &Server{deps: deps, validate: v, log: &l}
}
