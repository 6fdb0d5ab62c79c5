package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	tickets     TicketRepository
	comments    CommentRepository
	audit       AuditRepository
	users       UserRepository
	predictions PredictionLogRepository
}

func newPGStore(db DBTX) *pgStore {
	return &pgStore{
		tickets:     NewTicketRepository(db),
		comments:    NewCommentRepository(db),
		audit:       NewAuditRepository(db),
		users:       NewUserRepository(db),
		predictions: NewPredictionLogRepository(db),
	}
}

func (s *pgStore) Tickets() TicketRepository            { return s.tickets }
func (s *pgStore) Comments() CommentRepository          { return s.comments }
func (s *pgStore) Audit() AuditRepository               { return s.audit }
func (s *pgStore) Users() UserRepository                { return s.users }
func (s *pgStore) Predictions() PredictionLogRepository { return s.predictions }

// PostgresStore is the pgx-backed Transactor.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// WithinTx runs fn in a read-committed transaction. Row locks taken by
// LockAgents serialize concurrent assignment.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, newPGStore(tx))
	})
}
