package domain

import "time"

// Classification is the classifier's answer for one title/description pair.
type Classification struct {
	Category   Category       `json:"category"`
	Priority   TicketPriority `json:"priority"`
	Confidence float64        `json:"confidence"`
}

// DefaultClassification substitutes for an unavailable classifier.
var DefaultClassification = Classification{
	Category:   CategoryOther,
	Priority:   TicketPriorityMedium,
	Confidence: 0,
}

// PredictionLog records one classification and, once known, the actual outcome.
type PredictionLog struct {
	ID               string
	TicketID         string
	Prediction       Classification
	ActualCategory   *Category
	ActualPriority   *TicketPriority
	WasCorrect       *bool
	ModelVersion     string
	ProcessingMillis int64
	Fallback         bool
	CreatedAt        time.Time
}
