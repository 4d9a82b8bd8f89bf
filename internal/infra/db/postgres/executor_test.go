//go:build !integration

package postgres

import (
	"context"
	"errors"
	"testing"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/ports/repository"
)

func TestGetExecutor_RejectsUnknownContexts(t *testing.T) {
	if _, err := getExecutor(nil, repository.NoTX); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("nil pool and nil tx: got %v", err)
	}
	if _, err := getExecutor(nil, "not a tx"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Fatalf("string tx: got %v", err)
	}
	if _, err := execSQL(context.Background(), nil, 42, "SELECT 1"); !errors.Is(err, domain.ErrInvalidExecContext) {
		t.Fatalf("execSQL: got %v", err)
	}
}

func TestSchemaEmbedded(t *testing.T) {
	if schemaSQL == "" {
		t.Fatal("schema.sql not embedded")
	}
}
