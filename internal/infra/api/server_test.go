//go:build !integration

package api_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ebook-queue/internal/infra/api"
	apiv1 "ebook-queue/internal/infra/api/apiv1"
	"ebook-queue/internal/infra/memstore"
	"ebook-queue/internal/usecase"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newRouter(t *testing.T, store api.Pinger) http.Handler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	mem := memstore.New()
	states := usecase.NewUnitStateMachine(mem, &logger)
	registry := usecase.NewJobRegistry(mem, mem.Queue("pages"), "pages", states, &logger)
	srv := apiv1.NewServer(apiv1.Deps{
		Registry: registry,
		Export:   usecase.NewExportUseCase(registry),
	}, &logger)
	if store == nil {
		store = mem
	}
	return api.NewRouter(srv, store, &logger)
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	newRouter(t, downStore{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTraceIDHeader(t *testing.T) {
	h := newRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ebooks/missing", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Contains(t, rec.Body.String(), `"traceId":"req-123"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecover(t *testing.T) {
	logger := zerolog.New(io.Discard)
	h := api.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), api.TraceID(), api.Recover(&logger))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOperatorRoutesWithoutAuth(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ebooks/x/pages/0/requeue", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
