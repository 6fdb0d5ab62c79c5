package domain

import "time"

// Role enumerates account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// User models requesters, agents and administrators.
type User struct {
	ID                string
	Name              string
	Email             string
	PasswordHash      string
	Role              Role
	IsActive          bool
	SkillSet          SkillSet
	AssignedTicketIDs []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAgent reports whether the user can be routed tickets.
func (u *User) IsAgent() bool {
	return u.Role == RoleAgent
}

// Load is the number of tickets routed to the user so far.
func (u *User) Load() int {
	return len(u.AssignedTicketIDs)
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.AssignedTicketIDs = append([]string(nil), u.AssignedTicketIDs...)
	return &cp
}

// SkillSet is a set over Category. The empty set marks a generalist.
type SkillSet uint16

// NewSkillSet builds a set from categories, ignoring unknown values.
func NewSkillSet(categories ...Category) SkillSet {
	var s SkillSet
	for _, c := range categories {
		s = s.With(c)
	}
	return s
}

// With returns s plus c.
func (s SkillSet) With(c Category) SkillSet {
	if n := c.ordinal(); n >= 0 {
		return s | 1<<uint(n)
	}
	return s
}

// Has reports membership of c.
func (s SkillSet) Has(c Category) bool {
	n := c.ordinal()
	return n >= 0 && s&(1<<uint(n)) != 0
}

// Empty reports whether the set has no categories.
func (s SkillSet) Empty() bool {
	return s == 0
}

// Categories returns members in declaration order.
func (s SkillSet) Categories() []Category {
	out := make([]Category, 0, len(Categories))
	for _, c := range Categories {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Strings returns members as plain strings for storage.
func (s SkillSet) Strings() []string {
	cats := s.Categories()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

// SkillSetFromStrings parses stored category names.
func SkillSetFromStrings(values []string) SkillSet {
	var s SkillSet
	for _, v := range values {
		s = s.With(Category(v))
	}
	return s
}
