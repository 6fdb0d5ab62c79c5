package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// AuditRepository is append-only: entries are never updated or removed.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByEntity(ctx context.Context, entityType domain.EntityType, entityID string) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	db DBTX
}

// NewAuditRepository builds repository.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepository{db: db}
}

// Append stores entry and fills in its ID and Seq.
func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := domain.EncodeAuditDetail(entry.Detail)
	if err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO audit_entries (id, action, entity_type, entity_id, performed_by, details, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING seq`
	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.PerformedBy,
		details,
		entry.Timestamp,
	).Scan(&entry.Seq)
}

// ListByEntity returns entries in (timestamp, seq) order.
func (r *auditRepository) ListByEntity(ctx context.Context, entityType domain.EntityType, entityID string) ([]domain.AuditEntry, error) {
	const query = `
        SELECT id, seq, action, entity_type, entity_id, performed_by, details, created_at
        FROM audit_entries WHERE entity_type=$1 AND entity_id=$2 ORDER BY created_at ASC, seq ASC`
	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var (
			entry domain.AuditEntry
			raw   []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Seq,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.PerformedBy,
			&raw,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		detail, err := domain.DecodeAuditDetail(entry.Action, raw)
		if err != nil {
			return nil, fmt.Errorf("audit entry %s: %w", entry.ID, err)
		}
		entry.Detail = detail
		result = append(result, entry)
	}
	return result, rows.Err()
}
