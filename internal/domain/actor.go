package domain

type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// Privileged roles may decide obligations and override stand status.
func (r Role) Privileged() bool {
	return r == RoleOrganizer || r == RoleAdmin
}

// Actor identifies who performs a call. It is resolved by the identity
// collaborator and passed explicitly with every mutating operation.
type Actor struct {
	ID   string
	Role Role
}
