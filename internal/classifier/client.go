// Package classifier talks to the external ticket classification service.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const serviceName = "classifier"

// Result is one classification plus call metadata.
type Result struct {
	domain.Classification
	Warning        string        `json:"warning,omitempty"`
	ModelVersion   string        `json:"model_version,omitempty"`
	ProcessingTime time.Duration `json:"-"`
	Cached         bool          `json:"-"`
}

// Classifier maps free text to a category, priority and confidence.
type Classifier interface {
	Classify(ctx context.Context, title, description string) (Result, error)
}

// Client calls POST {baseURL}/ai/predict.
type Client struct {
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// ClientDependencies configures a Client.
type ClientDependencies struct {
	BaseURL string
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

// NewClient builds a Client.
func NewClient(deps ClientDependencies) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(deps.BaseURL, "/"),
		timeout: deps.Timeout,
		logger:  logger,
		metrics: deps.Metrics,
	}
}

type predictRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type predictResponse struct {
	Category     domain.Category       `json:"category"`
	Priority     domain.TicketPriority `json:"priority"`
	Confidence   *float64              `json:"confidence"`
	Warning      string                `json:"warning"`
	ModelVersion string                `json:"model_version"`
	Error        string                `json:"error"`
}

// Classify returns an UPSTREAM_UNAVAILABLE error for transport failures, non-2xx
// answers, and answers outside the closed category/priority sets.
func (c *Client) Classify(ctx context.Context, title, description string) (Result, error) {
	start := time.Now()
	result, err := c.classify(ctx, title, description)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordClassification("error", elapsed)
		return Result{}, apperrors.NewUpstreamUnavailable(serviceName, err)
	}
	c.metrics.RecordClassification("ok", elapsed)
	result.ProcessingTime = elapsed
	return result, nil
}

func (c *Client) classify(ctx context.Context, title, description string) (Result, error) {
	timeout, err := c.effectiveTimeout(ctx)
	if err != nil {
		return Result{}, err
	}

	agent := fiber.Post(c.baseURL + "/ai/predict")
	agent.JSON(predictRequest{Title: title, Description: description})
	if timeout > 0 {
		agent.Timeout(timeout)
	}
	if err := agent.Parse(); err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return Result{}, errors.Join(errs...)
	}
	if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
		return Result{}, fmt.Errorf("classifier returned status %d", status)
	}

	var resp predictResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if !resp.Category.Valid() {
		return Result{}, fmt.Errorf("unknown category %q", resp.Category)
	}
	if !resp.Priority.Valid() {
		return Result{}, fmt.Errorf("unknown priority %q", resp.Priority)
	}
	if resp.Confidence == nil || *resp.Confidence < 0 || *resp.Confidence > 1 {
		return Result{}, errors.New("confidence missing or outside [0,1]")
	}
	if resp.Warning != "" {
		c.logger.Debug("classifier warning", zap.String("warning", resp.Warning))
	}

	return Result{
		Classification: domain.Classification{
			Category:   resp.Category,
			Priority:   resp.Priority,
			Confidence: *resp.Confidence,
		},
		Warning:      resp.Warning,
		ModelVersion: resp.ModelVersion,
	}, nil
}

// effectiveTimeout is the configured timeout shortened to ctx's deadline.
func (c *Client) effectiveTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	return timeout, nil
}

// WithFallback classifies and substitutes domain.DefaultClassification on any
// error. The boolean reports whether the fallback was used.
func WithFallback(ctx context.Context, c Classifier, logger *zap.Logger, title, description string) (Result, bool) {
	result, err := c.Classify(ctx, title, description)
	if err != nil {
		logger.Warn("classification unavailable; using default", zap.Error(err))
		return Result{Classification: domain.DefaultClassification}, true
	}
	return result, false
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, title, description string) (Result, error)

func (f Func) Classify(ctx context.Context, title, description string) (Result, error) {
	return f(ctx, title, description)
}
