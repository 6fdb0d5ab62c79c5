package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy       *string
	AssignedAgentID *string
	Statuses        []domain.TicketStatus
	Categories      []domain.Category
	Priorities      []domain.TicketPriority
	Limit           int
	Offset          int
}

// TicketRepository encapsulates ticket persistence. Comments live in CommentRepository.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, title, description, category, priority, status, created_by,
               assigned_agent_id, assigned_to, ai_category, ai_priority, ai_confidence, ai_timestamp,
               is_automated, automation_result, escalation_reason, resolution_notes,
               created_at, updated_at, resolved_at, closed_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (` + ticketColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	ai := predictionColumns(ticket.AIPrediction)
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.CreatedBy,
		ticket.AssignedAgentID,
		ticket.AssignedTo,
		ai.category,
		ai.priority,
		ai.confidence,
		ai.timestamp,
		ticket.IsAutomated,
		nullableString(string(ticket.AutomationResult)),
		ticket.EscalationReason,
		ticket.ResolutionNotes,
		ticket.CreatedAt,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	)
	return duplicate(err)
}

// Update writes every mutable column. ai_* and created_at are write-once.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET category=$1, priority=$2, status=$3, assigned_agent_id=$4, assigned_to=$5,
            is_automated=$6, automation_result=$7, escalation_reason=$8, resolution_notes=$9,
            updated_at=$10, resolved_at=$11, closed_at=$12
        WHERE id=$13`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Category,
		ticket.Priority,
		ticket.Status,
		ticket.AssignedAgentID,
		ticket.AssignedTo,
		ticket.IsAutomated,
		nullableString(string(ticket.AutomationResult)),
		ticket.EscalationReason,
		ticket.ResolutionNotes,
		ticket.UpdatedAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssignedAgentID != nil {
		args = append(args, *filter.AssignedAgentID)
		clauses = append(clauses, fmt.Sprintf("assigned_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			args = append(args, c)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("category IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket       domain.Ticket
		aiCategory   *string
		aiPriority   *string
		aiConfidence *float64
		aiTimestamp  *time.Time
		result       *string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Status,
		&ticket.CreatedBy,
		&ticket.AssignedAgentID,
		&ticket.AssignedTo,
		&aiCategory,
		&aiPriority,
		&aiConfidence,
		&aiTimestamp,
		&ticket.IsAutomated,
		&result,
		&ticket.EscalationReason,
		&ticket.ResolutionNotes,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	if aiTimestamp != nil {
		prediction := &domain.AIPrediction{Timestamp: *aiTimestamp}
		if aiCategory != nil {
			prediction.Category = domain.Category(*aiCategory)
		}
		if aiPriority != nil {
			prediction.Priority = domain.TicketPriority(*aiPriority)
		}
		if aiConfidence != nil {
			prediction.Confidence = *aiConfidence
		}
		ticket.AIPrediction = prediction
	}
	if result != nil {
		ticket.AutomationResult = domain.AutomationResult(*result)
	}
	return &ticket, nil
}

type predictionRow struct {
	category   *string
	priority   *string
	confidence *float64
	timestamp  *time.Time
}

func predictionColumns(p *domain.AIPrediction) predictionRow {
	if p == nil {
		return predictionRow{}
	}
	category := string(p.Category)
	priority := string(p.Priority)
	confidence := p.Confidence
	ts := p.Timestamp
	return predictionRow{category: &category, priority: &priority, confidence: &confidence, timestamp: &ts}
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
