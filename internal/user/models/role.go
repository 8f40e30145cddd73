package models

// Role determines what a user may do and how large their quotas are.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
	RoleGuest  Role = "guest"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer, RoleGuest:
		return true
	}
	return false
}

// roleRanks orders roles for promotion checks: guest < viewer < editor < admin.
var roleRanks = map[Role]int{
	RoleGuest:  0,
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

// Rank returns the hierarchy level of the role. Unknown roles rank lowest.
func (r Role) Rank() int {
	return roleRanks[r]
}

// Status tracks the account lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusPending   Status = "pending"
	StatusDeleted   Status = "deleted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPending, StatusDeleted:
		return true
	}
	return false
}
