// Package authz holds the authorization policy: a closed role
// enumeration and the ownership-based access decisions every resource
// handler delegates to. Handlers never re-implement role checks.
package authz

// Role is the closed set of account roles.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// Actor is the authenticated identity a decision is made for. It is
// passed explicitly into every check, never read from ambient state.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  Role
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Scope restricts list queries. Callers filter in SQL by OwnerID when
// All is false; post-filtering fetched rows would leak row existence.
type Scope struct {
	All     bool
	OwnerID string
}

// ListScope returns the visibility scope for list operations: admins
// see everything, everyone else only rows they own.
func ListScope(actor Actor) Scope {
	if actor.IsAdmin() {
		return Scope{All: true}
	}
	return Scope{OwnerID: actor.ID}
}

// CanAccessProject reports whether actor may read or mutate a project
// owned by ownerID. A task's effective owner is its project's owner, so
// task checks resolve the parent project first and call this.
func CanAccessProject(actor Actor, ownerID string) bool {
	return actor.IsAdmin() || actor.ID == ownerID
}

// CanChangeRole reports whether actor may set targetUserID's role to
// newRole. An admin may never demote their own account; everything else
// is governed by the admin-only gate on the user-management routes.
func CanChangeRole(actor Actor, targetUserID string, newRole Role) bool {
	if actor.ID == targetUserID && newRole != RoleAdmin {
		return false
	}
	return true
}

// CanDeleteUser reports whether actor may delete targetUserID.
// Self-deletion is always refused.
func CanDeleteUser(actor Actor, targetUserID string) bool {
	return actor.ID != targetUserID
}
