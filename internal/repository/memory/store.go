// Package memory provides an in-process repository.Store. Transactions are
// serialized under one mutex and rolled back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/repository"
)

// Store implements repository.Transactor.
type Store struct {
	mu   sync.Mutex
	data *state
}

type state struct {
	tickets     map[string]*domain.Ticket
	comments    map[string][]domain.Comment
	users       map[string]*domain.User
	audit       []domain.AuditEntry
	predictions []domain.PredictionLog
	seq         int64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

func newState() *state {
	return &state{
		tickets:  map[string]*domain.Ticket{},
		comments: map[string][]domain.Comment{},
		users:    map[string]*domain.User{},
	}
}

func (s *state) clone() *state {
	cp := newState()
	for id, t := range s.tickets {
		cp.tickets[id] = t.Clone()
	}
	for id, cs := range s.comments {
		cp.comments[id] = append([]domain.Comment(nil), cs...)
	}
	for id, u := range s.users {
		cp.users[id] = u.Clone()
	}
	cp.audit = append([]domain.AuditEntry(nil), s.audit...)
	cp.predictions = make([]domain.PredictionLog, len(s.predictions))
	for i, p := range s.predictions {
		cp.predictions[i] = clonePrediction(p)
	}
	cp.seq = s.seq
	return cp
}

// WithinTx runs fn while holding the store lock. Any error restores the state
// as it was before fn started.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, store repository.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	tx := &txStore{state: s.data}
	if err := fn(ctx, tx); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

type txStore struct {
	state *state
}

func (t *txStore) Tickets() repository.TicketRepository            { return ticketRepo{t.state} }
func (t *txStore) Comments() repository.CommentRepository          { return commentRepo{t.state} }
func (t *txStore) Audit() repository.AuditRepository               { return auditRepo{t.state} }
func (t *txStore) Users() repository.UserRepository                { return userRepo{t.state} }
func (t *txStore) Predictions() repository.PredictionLogRepository { return predictionRepo{t.state} }

type ticketRepo struct{ s *state }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	if _, ok := r.s.tickets[ticket.ID]; ok {
		return repository.ErrDuplicate
	}
	stored := ticket.Clone()
	stored.Comments = nil
	r.s.tickets[ticket.ID] = stored
	return nil
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	current, ok := r.s.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored := ticket.Clone()
	stored.Comments = nil
	// write-once columns
	stored.Title = current.Title
	stored.Description = current.Description
	stored.CreatedBy = current.CreatedBy
	stored.CreatedAt = current.CreatedAt
	stored.AIPrediction = current.AIPrediction
	r.s.tickets[ticket.ID] = stored
	return nil
}

func (r ticketRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.s.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.tickets, id)
	delete(r.s.comments, id)
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.Clone(), nil
}

func (r ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var matched []domain.Ticket
	for _, t := range r.s.tickets {
		if filter.CreatedBy != nil && t.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedAgentID != nil && !t.IsAssignedTo(*filter.AssignedAgentID) {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Categories) > 0 && !contains(filter.Categories, t.Category) {
			continue
		}
		if len(filter.Priorities) > 0 && !contains(filter.Priorities, t.Priority) {
			continue
		}
		matched = append(matched, *t.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

type commentRepo struct{ s *state }

func (r commentRepo) Create(_ context.Context, ticketID string, comment *domain.Comment) error {
	if _, ok := r.s.tickets[ticketID]; !ok {
		return repository.ErrNotFound
	}
	if comment.ID == "" {
		comment.ID = uuid.NewString()
	}
	r.s.comments[ticketID] = append(r.s.comments[ticketID], *comment)
	return nil
}

func (r commentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	return append([]domain.Comment(nil), r.s.comments[ticketID]...), nil
}

type auditRepo struct{ s *state }

func (r auditRepo) Append(_ context.Context, entry *domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	r.s.seq++
	entry.Seq = r.s.seq
	r.s.audit = append(r.s.audit, *entry)
	return nil
}

func (r auditRepo) ListByEntity(_ context.Context, entityType domain.EntityType, entityID string) ([]domain.AuditEntry, error) {
	var result []domain.AuditEntry
	for _, e := range r.s.audit {
		if e.EntityType == entityType && e.EntityID == entityID {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].Seq < result[j].Seq
	})
	return result, nil
}

type userRepo struct{ s *state }

func (r userRepo) Create(_ context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(user.Email)
	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.AssignedTicketIDs == nil {
		user.AssignedTicketIDs = []string{}
	}
	r.s.users[user.ID] = user.Clone()
	return nil
}

func (r userRepo) Update(_ context.Context, user *domain.User) error {
	current, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored := user.Clone()
	stored.AssignedTicketIDs = current.AssignedTicketIDs
	stored.CreatedAt = current.CreatedAt
	r.s.users[user.ID] = stored
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(email)
	for _, u := range r.s.users {
		if u.Email == email {
			return u.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r userRepo) List(_ context.Context, filter repository.UserFilter) ([]domain.User, error) {
	var result []domain.User
	for _, u := range r.s.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		result = append(result, *u.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

// LockAgents needs no row locks here: the whole store is locked for the transaction.
func (r userRepo) LockAgents(_ context.Context) ([]domain.User, error) {
	var result []domain.User
	for _, u := range r.s.users {
		if u.IsAgent() && u.IsActive {
			result = append(result, *u.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r userRepo) AddAssignedTicket(_ context.Context, agentID, ticketID string) error {
	u, ok := r.s.users[agentID]
	if !ok {
		return repository.ErrNotFound
	}
	u.AssignedTicketIDs = append(u.AssignedTicketIDs, ticketID)
	return nil
}

func (r userRepo) RemoveAssignedTicket(_ context.Context, agentID, ticketID string) error {
	u, ok := r.s.users[agentID]
	if !ok {
		return repository.ErrNotFound
	}
	kept := u.AssignedTicketIDs[:0]
	for _, id := range u.AssignedTicketIDs {
		if id != ticketID {
			kept = append(kept, id)
		}
	}
	u.AssignedTicketIDs = kept
	return nil
}

type predictionRepo struct{ s *state }

func (r predictionRepo) Create(_ context.Context, log *domain.PredictionLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	r.s.predictions = append(r.s.predictions, clonePrediction(*log))
	return nil
}

func (r predictionRepo) RecordOutcome(_ context.Context, ticketID string, category domain.Category, priority domain.TicketPriority) error {
	for i := range r.s.predictions {
		p := &r.s.predictions[i]
		if p.TicketID != ticketID {
			continue
		}
		c, pr := category, priority
		correct := p.Prediction.Category == category && p.Prediction.Priority == priority
		p.ActualCategory = &c
		p.ActualPriority = &pr
		p.WasCorrect = &correct
	}
	return nil
}

func (r predictionRepo) List(_ context.Context) ([]domain.PredictionLog, error) {
	result := make([]domain.PredictionLog, len(r.s.predictions))
	for i, p := range r.s.predictions {
		result[i] = clonePrediction(p)
	}
	return result, nil
}

func clonePrediction(p domain.PredictionLog) domain.PredictionLog {
	if p.ActualCategory != nil {
		c := *p.ActualCategory
		p.ActualCategory = &c
	}
	if p.ActualPriority != nil {
		pr := *p.ActualPriority
		p.ActualPriority = &pr
	}
	if p.WasCorrect != nil {
		w := *p.WasCorrect
		p.WasCorrect = &w
	}
	return p
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
