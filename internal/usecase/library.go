// File: internal/usecase/library.go
package usecase

import (
	"context"
	"time"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
	"ebook-queue/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

var _ LibraryUseCase = (*libraryUC)(nil)

// LibraryUseCase is the long-term archive of finished ebooks.
type LibraryUseCase interface {
	Enabled() bool
	Archive(ctx context.Context, job *model.Job, units []*model.WorkUnit) (*model.ArchivedEbook, error)
	List(ctx context.Context, limit, offset int) ([]*model.ArchivedEbook, error)
	Get(ctx context.Context, id string) (*model.ArchivedEbook, error)
}

type libraryUC struct {
	repo repository.ArchiveRepository
	tm   repository.TransactionManager
	log  *zerolog.Logger
	now  func() time.Time
}

// NewLibraryUseCase accepts nil repo and tm; every call then fails with
// domain.ErrArchiveDisabled.
func NewLibraryUseCase(repo repository.ArchiveRepository, tm repository.TransactionManager, logger *zerolog.Logger) *libraryUC {
	l := logger.With().Str("component", "LibraryUseCase").Logger()
	return &libraryUC{repo: repo, tm: tm, log: &l, now: time.Now}
}

func (l *libraryUC) Enabled() bool { return l.repo != nil && l.tm != nil }

func (l *libraryUC) Archive(ctx context.Context, job *model.Job, units []*model.WorkUnit) (*model.ArchivedEbook, error) {
	if !l.Enabled() {
		return nil, domain.ErrArchiveDisabled
	}
	ebook := model.NewArchivedEbook(job, units, l.now().UTC())
	err := l.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return l.repo.Save(ctx, tx, ebook)
	})
	metrics.IncArchiveWrite(err == nil)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("job_id", job.ID).Int("pages", ebook.CompletedPages).Msg("ebook archived")
	return ebook, nil
}

func (l *libraryUC) List(ctx context.Context, limit, offset int) ([]*model.ArchivedEbook, error) {
	if !l.Enabled() {
		return nil, domain.ErrArchiveDisabled
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.List(ctx, repository.NoTX, limit, offset)
}

func (l *libraryUC) Get(ctx context.Context, id string) (*model.ArchivedEbook, error) {
	if !l.Enabled() {
		return nil, domain.ErrArchiveDisabled
	}
	return l.repo.FindByID(ctx, repository.NoTX, id)
}
