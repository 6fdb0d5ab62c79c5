package dto

import (
	"time"

	"github.com/spec-kit/ticket-workflow/internal/domain"
)

// UserRegisterRequest payload for new users.
type UserRegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UserLoginRequest payload for login.
type UserLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateUserRequest carries admin edits. A nil skill_set leaves the skills
// unchanged; an empty list clears them.
type UpdateUserRequest struct {
	Name     *string  `json:"name,omitempty" validate:"omitempty,max=120"`
	Role     *string  `json:"role,omitempty" validate:"omitempty,oneof=user agent admin"`
	IsActive *bool    `json:"is_active,omitempty"`
	SkillSet []string `json:"skill_set" validate:"omitempty,dive,ticket_category"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Email           string      `json:"email"`
	Role            domain.Role `json:"role"`
	IsActive        bool        `json:"is_active"`
	SkillSet        []string    `json:"skill_set,omitempty"`
	AssignedTickets int         `json:"assigned_tickets"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// NewUserResponse maps a user.
func NewUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		ID:              u.ID,
		Name:            u.Name,
		Email:           u.Email,
		Role:            u.Role,
		IsActive:        u.IsActive,
		SkillSet:        u.SkillSet.Strings(),
		AssignedTickets: len(u.AssignedTicketIDs),
	}
}
