package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/classifier"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/repository/memory"
	"github.com/spec-kit/ticket-workflow/internal/service"
)

type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testServer struct {
	app    *fiber.App
	store  *memory.Store
	tokens *auth.TokenManager
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	return newTestServer(t).app
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := memory.NewStore()
	clock := func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }

	authService := service.NewAuthService(
		config.AuthConfig{JWTSecret: "router-secret", AccessTokenTTLMinutes: 60, BcryptCost: bcrypt.MinCost},
		service.AuthDependencies{Transactor: store, Logger: logger, Clock: clock},
	)
	predict := classifier.Func(func(context.Context, string, string) (classifier.Result, error) {
		return classifier.Result{Classification: domain.Classification{
			Category: domain.CategoryHardwareIssue, Priority: domain.TicketPriorityMedium, Confidence: 0.9,
		}}, nil
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Transactor: store,
		Classifier: predict,
		Logger:     logger,
	})
	dashboard := service.NewDashboardService(store, clock)
	users := service.NewUserService(service.UserDependencies{Transactor: store, Logger: logger, Clock: clock})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	RegisterMiddlewares(app, logger, nil, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-workflow", "test", nil),
		Users:          handlers.NewUsersHandler(authService),
		Admin:          handlers.NewAdminUsersHandler(users),
		Tickets:        handlers.NewTicketsHandler(tickets),
		Dashboard:      handlers.NewDashboardHandler(dashboard),
		AI:             handlers.NewAIHandler(predict, dashboard),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), authService),
	})
	return testServer{app: app, store: store, tokens: authService.TokenManager()}
}

// seedUser stores an account directly and returns a token for it.
func seedUser(t *testing.T, srv testServer, user domain.User) string {
	t.Helper()
	require.NoError(t, srv.store.WithinTx(context.Background(), func(ctx context.Context, tx repository.Store) error {
		return tx.Users().Create(ctx, &user)
	}))
	token, _, err := srv.tokens.GenerateToken(user.ID, user.Role)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*nethttp.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func register(t *testing.T, app *fiber.App, email string) string {
	t.Helper()
	resp, body := doJSON(t, app, fiber.MethodPost, "/auth/register", "", map[string]string{
		"name": "Requester", "email": email, "password": "long-enough-pw",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Data.Token)
	return out.Data.Token
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var out errorBody
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return out
}

func TestTicketRoundTrip(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "req@example.com")

	resp, body := doJSON(t, app, fiber.MethodPost, "/tickets", token, map[string]string{
		"title": "Laptop fan", "description": "The fan is loud",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		Data struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			Category     string `json:"category"`
			AIPrediction *struct {
				Confidence float64 `json:"confidence"`
			} `json:"ai_prediction"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, string(domain.CategoryHardwareIssue), created.Data.Category)
	assert.Equal(t, string(domain.TicketStatusOpen), created.Data.Status)
	require.NotNil(t, created.Data.AIPrediction)
	assert.InDelta(t, 0.9, created.Data.AIPrediction.Confidence, 1e-9)

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets/"+created.Data.ID, token, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, app, fiber.MethodPost, "/tickets/"+created.Data.ID+"/comments", token, map[string]string{"text": "still loud"})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets/"+created.Data.ID+"/workflow", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var workflow domain.Workflow
	require.NoError(t, json.Unmarshal(body, &workflow))
	assert.Equal(t, created.Data.ID, workflow.TicketID)
	assert.NotEmpty(t, workflow.Events)

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets?status=Open", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var list struct {
		Data []json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list.Data, 1)
}

func TestErrorEnvelope(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "req@example.com")
	other := register(t, app, "other@example.com")

	resp, body := doJSON(t, app, fiber.MethodPost, "/tickets", token, map[string]string{"title": "only a title"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	env := decodeError(t, body)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Contains(t, env.Error.Details, "description")

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, body).Error.Code)

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets/missing", token, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, body).Error.Code)

	resp, _ = doJSON(t, app, fiber.MethodGet, "/dashboard/stats", token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets?priority=Urgent", token, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, body).Error.Details, "priority")

	resp, body = doJSON(t, app, fiber.MethodPost, "/tickets", token, map[string]string{"title": "t", "description": "d"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = doJSON(t, app, fiber.MethodGet, "/tickets/"+created.Data.ID, other, nil)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", decodeError(t, body).Error.Code)

	resp, _ = doJSON(t, app, fiber.MethodDelete, "/tickets/"+created.Data.ID, token, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestPredictPassthrough(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "req@example.com")

	resp, body := doJSON(t, app, fiber.MethodPost, "/ai/predict", token, map[string]string{
		"title": "fan", "description": "noisy",
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, string(domain.CategoryHardwareIssue), out.Category)
}

func TestHealthLive(t *testing.T) {
	app := newTestApp(t)
	resp, _ := doJSON(t, app, fiber.MethodGet, "/health/live", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, app, fiber.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCurrentUser(t *testing.T) {
	app := newTestApp(t)
	token := register(t, app, "me@example.com")

	resp, body := doJSON(t, app, fiber.MethodGet, "/auth/me", token, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var out struct {
		Data struct {
			Email    string `json:"email"`
			Role     string `json:"role"`
			IsActive bool   `json:"is_active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "me@example.com", out.Data.Email)
	assert.Equal(t, string(domain.RoleUser), out.Data.Role)
	assert.True(t, out.Data.IsActive)

	resp, body = doJSON(t, app, fiber.MethodGet, "/auth/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, body).Error.Code)
}

func TestUserManagement(t *testing.T) {
	srv := newTestServer(t)
	adminToken := seedUser(t, srv, domain.User{
		ID: "admin-1", Name: "Admin", Email: "admin@example.com", Role: domain.RoleAdmin, IsActive: true,
	})
	seedUser(t, srv, domain.User{
		ID: "agent-1", Name: "Agent", Email: "agent@example.com", Role: domain.RoleAgent, IsActive: true,
	})
	userToken := register(t, srv.app, "plain@example.com")

	resp, body := doJSON(t, srv.app, fiber.MethodGet, "/users", userToken, nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode, string(body))

	resp, body = doJSON(t, srv.app, fiber.MethodGet, "/users?role=agent", adminToken, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "agent-1", list.Data[0].ID)

	resp, body = doJSON(t, srv.app, fiber.MethodGet, "/users?active=maybe", adminToken, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decodeError(t, body).Error.Details, "active")

	resp, body = doJSON(t, srv.app, fiber.MethodPut, "/users/agent-1", adminToken, map[string]any{
		"role":      "overlord",
		"skill_set": []string{"Network Issue", "Plumbing"},
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, string(body))
	errBody := decodeError(t, body)
	assert.Equal(t, "VALIDATION_FAILED", errBody.Error.Code)
	assert.Contains(t, errBody.Error.Details, "role")
	assert.Contains(t, errBody.Error.Details, "skill_set[1]")

	resp, body = doJSON(t, srv.app, fiber.MethodPut, "/users/agent-1", adminToken, map[string]any{
		"skill_set": []string{"Network Issue"},
		"is_active": false,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	var updated struct {
		Data struct {
			IsActive bool     `json:"is_active"`
			SkillSet []string `json:"skill_set"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.Data.IsActive)
	assert.Equal(t, []string{"Network Issue"}, updated.Data.SkillSet)

	resp, _ = doJSON(t, srv.app, fiber.MethodPut, "/users/agent-1", userToken, map[string]any{"is_active": true})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body = doJSON(t, srv.app, fiber.MethodGet, "/users/missing", adminToken, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decodeError(t, body).Error.Code)
}
