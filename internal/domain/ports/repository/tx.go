package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a library database transaction and hands the
// underlying handle to repositories through tx. The concrete type is infra-defined
// (pgx.Tx for Postgres); repositories accept a nil tx as the non-transactional path.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		return archive.Save(ctx, tx, ebook)
//	})
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
