package domain

// Actor identifies the authenticated caller of a ticket operation.
type Actor struct {
	ID   string
	Role Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

func (a Actor) IsAgent() bool {
	return a.Role == RoleAgent
}

// CanView applies the visibility rule: requesters see their own tickets,
// agents see tickets assigned to them, admins see everything.
func (a Actor) CanView(t *Ticket) bool {
	switch a.Role {
	case RoleAdmin:
		return true
	case RoleAgent:
		return t.IsAssignedTo(a.ID)
	case RoleUser:
		return t.CreatedBy == a.ID
	default:
		return false
	}
}
