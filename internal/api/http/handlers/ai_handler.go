package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/classifier"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

// AIHandler exposes the classifier directly and the accuracy it has achieved.
type AIHandler struct {
	classifier classifier.Classifier
	dashboard  *service.DashboardService
}

func NewAIHandler(c classifier.Classifier, dashboard *service.DashboardService) *AIHandler {
	return &AIHandler{classifier: c, dashboard: dashboard}
}

// Predict POST /ai/predict. No fallback is applied here; classifier failures
// surface as 503.
func (h *AIHandler) Predict(c *fiber.Ctx) error {
	var req dto.PredictRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	result, err := h.classifier.Classify(c.UserContext(), req.Title, req.Description)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeUpstreamUnavailable) {
			return err
		}
		return apperrors.NewUpstreamUnavailable("classifier", err)
	}
	return c.JSON(dto.PredictResponse{
		Category:         result.Category,
		Priority:         result.Priority,
		Confidence:       result.Confidence,
		ModelVersion:     result.ModelVersion,
		ProcessingMillis: result.ProcessingTime.Milliseconds(),
		Cached:           result.Cached,
	})
}

// Stats GET /ai/stats.
func (h *AIHandler) Stats(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	stats, err := h.dashboard.ModelStats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}
