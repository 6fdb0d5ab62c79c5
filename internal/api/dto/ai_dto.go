package dto

import "github.com/spec-kit/ticket-workflow/internal/domain"

// PredictRequest payload for the classifier passthrough.
type PredictRequest struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// PredictResponse mirrors the classifier answer.
type PredictResponse struct {
	Category         domain.Category       `json:"category"`
	Priority         domain.TicketPriority `json:"priority"`
	Confidence       float64               `json:"confidence"`
	ModelVersion     string                `json:"model_version,omitempty"`
	ProcessingMillis int64                 `json:"processing_ms"`
	Cached           bool                  `json:"cached"`
}
