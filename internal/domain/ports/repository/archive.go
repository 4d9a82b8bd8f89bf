package repository

import (
	"context"

	"ebook-queue/internal/domain/model"
)

// ArchiveRepository is the long-term library of finished ebooks.
type ArchiveRepository interface {
	Save(ctx context.Context, tx Tx, ebook *model.ArchivedEbook) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ArchivedEbook, error)
	List(ctx context.Context, tx Tx, limit, offset int) ([]*model.ArchivedEbook, error)
}
