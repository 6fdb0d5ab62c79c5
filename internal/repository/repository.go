package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned by every repository when the requested record is absent.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate reports a unique constraint violation, e.g. a reused email.
	ErrDuplicate = errors.New("record already exists")
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store groups the repositories bound to one unit of work.
type Store interface {
	Tickets() TicketRepository
	Comments() CommentRepository
	Audit() AuditRepository
	Users() UserRepository
	Predictions() PredictionLogRepository
}

// Transactor runs fn inside a transaction. A non-nil error from fn rolls back
// every write made through the Store it received.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const uniqueViolation = "23505"

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicate
	}
	return err
}
