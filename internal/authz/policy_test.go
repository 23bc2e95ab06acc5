package authz

import "testing"

func TestListScope(t *testing.T) {
	admin := Actor{ID: "a1", Role: RoleAdmin}
	member := Actor{ID: "u1", Role: RoleUser}

	if scope := ListScope(admin); !scope.All || scope.OwnerID != "" {
		t.Fatalf("admin scope = %+v, want All", scope)
	}
	if scope := ListScope(member); scope.All || scope.OwnerID != "u1" {
		t.Fatalf("user scope = %+v, want owner filter", scope)
	}
}

func TestCanAccessProject(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		ownerID string
		want    bool
	}{
		{name: "owner", actor: Actor{ID: "u1", Role: RoleUser}, ownerID: "u1", want: true},
		{name: "other user", actor: Actor{ID: "u1", Role: RoleUser}, ownerID: "u2", want: false},
		{name: "admin over any project", actor: Actor{ID: "a1", Role: RoleAdmin}, ownerID: "u2", want: true},
		{name: "admin over own project", actor: Actor{ID: "a1", Role: RoleAdmin}, ownerID: "a1", want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanAccessProject(tc.actor, tc.ownerID); got != tc.want {
				t.Fatalf("CanAccessProject() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanChangeRole(t *testing.T) {
	admin := Actor{ID: "a1", Role: RoleAdmin}

	tests := []struct {
		name    string
		target  string
		newRole Role
		want    bool
	}{
		{name: "demote someone else", target: "u1", newRole: RoleUser, want: true},
		{name: "promote someone else", target: "u1", newRole: RoleAdmin, want: true},
		{name: "keep own admin role", target: "a1", newRole: RoleAdmin, want: true},
		{name: "demote self", target: "a1", newRole: RoleUser, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanChangeRole(admin, tc.target, tc.newRole); got != tc.want {
				t.Fatalf("CanChangeRole() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanDeleteUser(t *testing.T) {
	admin := Actor{ID: "a1", Role: RoleAdmin}

	if CanDeleteUser(admin, "a1") {
		t.Fatal("self-deletion must be refused")
	}
	if !CanDeleteUser(admin, "u1") {
		t.Fatal("deleting another account must be allowed")
	}
}

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{role: RoleAdmin, want: true},
		{role: RoleUser, want: true},
		{role: Role("superuser"), want: false},
		{role: Role(""), want: false},
	}

	for _, tc := range tests {
		if got := tc.role.Valid(); got != tc.want {
			t.Fatalf("Role(%q).Valid() = %v, want %v", tc.role, got, tc.want)
		}
	}
}
