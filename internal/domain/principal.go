package domain

import "strings"

// Role is the authorization role carried by an authenticated principal.
type Role string

// Roles understood by the API.
const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole normalizes a raw claim value into a known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleTeacher:
		return RoleTeacher, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// GroupName returns the realtime group every member of the role joins.
func (r Role) GroupName() string {
	switch r {
	case RoleTeacher:
		return "Teachers"
	case RoleAdmin:
		return "Admins"
	default:
		return "Students"
	}
}

// Principal identifies an authenticated caller. It is resolved once per
// request or websocket session and passed explicitly into service calls.
type Principal struct {
	UserID      string
	DisplayName string
	Role        Role
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanManage reports whether the principal may administer the resource owned
// by ownerID: admins always, otherwise only the owner.
func (p Principal) CanManage(ownerID string) bool {
	return p.IsAdmin() || (p.UserID != "" && p.UserID == ownerID)
}
