//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	assert.Equal(t, "sk-live-secret", Redact("sk-live-secret", true))
	assert.Equal(t, "sk-******et", Redact("sk-live-secret", false))
	assert.Equal(t, "*****", Redact("short", false))
	assert.Equal(t, "", Redact("", false))
}

func TestWith_AttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "tr-1")
	ctx = WithUnit(ctx, "job-9", 3)
	ctx = WithWorkerID(ctx, 2)
	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tr-1", line["trace_id"])
	assert.Equal(t, "job-9", line["job_id"])
	assert.EqualValues(t, 3, line["unit_index"])
	assert.EqualValues(t, 2, line["worker_id"])
	assert.Equal(t, "tr-1", TraceID(ctx))
	assert.Equal(t, "", TraceID(context.Background()))
}
