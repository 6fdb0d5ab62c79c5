package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// PredictionLogRepository keeps one classification record per ticket.
type PredictionLogRepository interface {
	Create(ctx context.Context, log *domain.PredictionLog) error
	// RecordOutcome stores the ticket's final category and priority and
	// whether the prediction matched them.
	RecordOutcome(ctx context.Context, ticketID string, category domain.Category, priority domain.TicketPriority) error
	List(ctx context.Context) ([]domain.PredictionLog, error)
}

type predictionLogRepository struct {
	db DBTX
}

// NewPredictionLogRepository builds repository.
func NewPredictionLogRepository(db DBTX) PredictionLogRepository {
	return &predictionLogRepository{db: db}
}

func (r *predictionLogRepository) Create(ctx context.Context, log *domain.PredictionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO ai_model_logs (id, ticket_id, predicted_category, predicted_priority, confidence,
            model_version, processing_millis, fallback, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.TicketID,
		log.Prediction.Category,
		log.Prediction.Priority,
		log.Prediction.Confidence,
		log.ModelVersion,
		log.ProcessingMillis,
		log.Fallback,
		log.CreatedAt,
	)
	return err
}

func (r *predictionLogRepository) RecordOutcome(ctx context.Context, ticketID string, category domain.Category, priority domain.TicketPriority) error {
	const query = `
        UPDATE ai_model_logs
        SET actual_category=$2, actual_priority=$3,
            was_correct = (predicted_category=$2 AND predicted_priority=$3)
        WHERE ticket_id=$1`
	_, err := r.db.Exec(ctx, query, ticketID, category, priority)
	return err
}

func (r *predictionLogRepository) List(ctx context.Context) ([]domain.PredictionLog, error) {
	const query = `
        SELECT id, ticket_id, predicted_category, predicted_priority, confidence, actual_category,
            actual_priority, was_correct, model_version, processing_millis, fallback, created_at
        FROM ai_model_logs ORDER BY created_at ASC, id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PredictionLog
	for rows.Next() {
		var log domain.PredictionLog
		if err := rows.Scan(
			&log.ID,
			&log.TicketID,
			&log.Prediction.Category,
			&log.Prediction.Priority,
			&log.Prediction.Confidence,
			&log.ActualCategory,
			&log.ActualPriority,
			&log.WasCorrect,
			&log.ModelVersion,
			&log.ProcessingMillis,
			&log.Fallback,
			&log.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, log)
	}
	return result, rows.Err()
}
