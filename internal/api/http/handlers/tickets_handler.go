package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// TicketsHandler serves the ticket endpoints for every role. Visibility is
// enforced by the service.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), actor, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	query, err := parseTicketQuery(c)
	if err != nil {
		return err
	}

	tickets, err := h.service.ListTickets(c.UserContext(), actor, service.TicketListFilter{
		Statuses:   query.Statuses,
		Categories: query.Categories,
		Priorities: query.Priorities,
		Limit:      query.PageSize,
		Offset:     (query.Page - 1) * query.PageSize,
	})
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(dto.TicketListResponse{Data: items, Page: query.Page, PageSize: query.PageSize})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	input := service.TicketUpdateInput{ResolutionNotes: req.ResolutionNotes}
	if req.Status != nil {
		v := domain.TicketStatus(*req.Status)
		input.Status = &v
	}
	if req.Priority != nil {
		v := domain.TicketPriority(*req.Priority)
		input.Priority = &v
	}
	if req.Category != nil {
		v := domain.Category(*req.Category)
		input.Category = &v
	}

	ticket, err := h.service.UpdateTicket(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteTicket(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	comment, err := h.service.AddComment(c.UserContext(), actor, c.Params("id"), req.Text)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCommentResponse(comment)})
}

// EscalateTicket POST /tickets/:id/escalate. The body is optional.
func (h *TicketsHandler) EscalateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.EscalateTicketRequest
	if len(c.Body()) > 0 {
		if err := bindJSON(c, &req); err != nil {
			return err
		}
	}
	ticket, err := h.service.EscalateTicket(c.UserContext(), actor, c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetWorkflow GET /tickets/:id/workflow.
func (h *TicketsHandler) GetWorkflow(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	workflow, err := h.service.GetWorkflow(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(workflow)
}

func parseTicketQuery(c *fiber.Ctx) (dto.TicketListQuery, error) {
	page, pageSize := pageParams(c)
	query := dto.TicketListQuery{Page: page, PageSize: pageSize}

	invalid := map[string]any{}
	for _, v := range splitQuery(c.Query("status")) {
		s := domain.TicketStatus(v)
		if !s.Valid() {
			invalid["status"] = v
			continue
		}
		query.Statuses = append(query.Statuses, s)
	}
	for _, v := range splitQuery(c.Query("category")) {
		cat := domain.Category(v)
		if !cat.Valid() {
			invalid["category"] = v
			continue
		}
		query.Categories = append(query.Categories, cat)
	}
	for _, v := range splitQuery(c.Query("priority")) {
		p := domain.TicketPriority(v)
		if !p.Valid() {
			invalid["priority"] = v
			continue
		}
		query.Priorities = append(query.Priorities, p)
	}
	if len(invalid) > 0 {
		return query, apperrors.NewValidationError("invalid filter value", invalid)
	}
	return query, nil
}

func splitQuery(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
