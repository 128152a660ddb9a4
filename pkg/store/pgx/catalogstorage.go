package pgx

import (
	"context"
	"sync"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// CatalogDBStorage implements the CatalogStorage interface using PostgreSQL
// with pgvector for similarity search over chunk embeddings. Writes are
// serialized with a mutex so concurrent pipeline workers cannot interleave
// partial batches.
type CatalogDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

// NewCatalogDBStorageWithConnection creates a new CatalogDBStorage using an
// existing database connection or pool.
func NewCatalogDBStorageWithConnection(ctx context.Context, conn pgxIConn) (*CatalogDBStorage, error) {
	return &CatalogDBStorage{
		conn:   conn,
		dbLock: sync.Mutex{},
	}, nil
}
