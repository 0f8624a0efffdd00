package models

// Role is the closed set of roles an identity can hold. Role strings pass
// through the access token unchanged; no policy engine interprets them here.
type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

var roleIDs = map[int]Role{
	1: RoleAdmin,
	2: RoleUser,
}

// RoleByID resolves a role id as stored in the roles table.
func RoleByID(id int) (Role, bool) {
	r, ok := roleIDs[id]
	return r, ok
}

// ID returns the roles table id, or 0 for an unknown role.
func (r Role) ID() int {
	for id, role := range roleIDs {
		if role == r {
			return id
		}
	}
	return 0
}

func (r Role) Valid() bool {
	return r.ID() != 0
}
