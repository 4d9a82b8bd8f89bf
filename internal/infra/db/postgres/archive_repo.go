package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ebook-queue/internal/domain"
	"ebook-queue/internal/domain/model"
	"ebook-queue/internal/domain/ports/repository"
)

var _ repository.ArchiveRepository = (*archiveRepo)(nil)

type archiveRepo struct {
	pool *pgxpool.Pool
}

func NewArchiveRepo(pool *pgxpool.Pool) repository.ArchiveRepository {
	return &archiveRepo{pool: pool}
}

// Save upserts the ebook and replaces its pages. Run it inside a transaction so
// readers never see the ebook without its pages.
func (r *archiveRepo) Save(ctx context.Context, tx repository.Tx, e *model.ArchivedEbook) error {
	const upsert = `
INSERT INTO ebooks (id, title, description, content_mode, status, total_pages, completed_pages, created_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
  title           = EXCLUDED.title,
  description     = EXCLUDED.description,
  content_mode    = EXCLUDED.content_mode,
  status          = EXCLUDED.status,
  total_pages     = EXCLUDED.total_pages,
  completed_pages = EXCLUDED.completed_pages,
  archived_at     = EXCLUDED.archived_at;
`
	if _, err := execSQL(ctx, r.pool, tx, upsert,
		e.ID, e.Title, e.Description, string(e.ContentMode), string(e.Status),
		e.TotalPages, e.CompletedPages, e.CreatedAt, e.ArchivedAt,
	); err != nil {
		return fmt.Errorf("save ebook: %w", err)
	}
	if _, err := execSQL(ctx, r.pool, tx, `DELETE FROM ebook_pages WHERE ebook_id = $1;`, e.ID); err != nil {
		return fmt.Errorf("clear ebook pages: %w", err)
	}
	if len(e.Pages) == 0 {
		return nil
	}

	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const insertPage = `INSERT INTO ebook_pages (ebook_id, page_index, title, content) VALUES ($1, $2, $3, $4);`
	b := &pgx.Batch{}
	for _, p := range e.Pages {
		b.Queue(insertPage, e.ID, p.Index, p.Title, p.Content)
	}
	br := ex.SendBatch(ctx, b)
	defer br.Close()
	for range e.Pages {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("save ebook page: %w", err)
		}
	}
	return nil
}

func (r *archiveRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ArchivedEbook, error) {
	const q = `
SELECT id, title, description, content_mode, status, total_pages, completed_pages, created_at, archived_at
  FROM ebooks
 WHERE id = $1;
`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	e, err := scanEbook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}

	rows, err := queryRows(ctx, r.pool, tx,
		`SELECT page_index, title, content FROM ebook_pages WHERE ebook_id = $1 ORDER BY page_index;`, id)
	if err != nil {
		return nil, fmt.Errorf("list ebook pages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.ArchivedPage
		if err := rows.Scan(&p.Index, &p.Title, &p.Content); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		e.Pages = append(e.Pages, p)
	}
	return e, rows.Err()
}

// List returns ebooks newest first, without their pages.
func (r *archiveRepo) List(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.ArchivedEbook, error) {
	const q = `
SELECT id, title, description, content_mode, status, total_pages, completed_pages, created_at, archived_at
  FROM ebooks
 ORDER BY archived_at DESC, id
 LIMIT $1 OFFSET $2;
`
	rows, err := queryRows(ctx, r.pool, tx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list ebooks: %w", err)
	}
	defer rows.Close()
	var out []*model.ArchivedEbook
	for rows.Next() {
		e, err := scanEbook(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEbook(row pgx.Row) (*model.ArchivedEbook, error) {
	var e model.ArchivedEbook
	var mode, status string
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &mode, &status,
		&e.TotalPages, &e.CompletedPages, &e.CreatedAt, &e.ArchivedAt); err != nil {
		return nil, err
	}
	e.ContentMode = model.ContentMode(mode)
	e.Status = model.JobStatus(status)
	return &e, nil
}
