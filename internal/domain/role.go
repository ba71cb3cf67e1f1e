package domain

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// DeletedRoleName is the sentinel department recorded on tickets whose role
// was removed from configuration after the ticket was stored.
const DeletedRoleName = "deleted"

// Role is a named support department. Roles are created once from
// configuration at startup and never mutated afterwards.
type Role struct {
	Name              string   `json:"name"`
	ServerGroups      []uint64 `json:"server_groups"`
	ChannelID         uint64   `json:"channel_id"`
	CanViewBlacklist  bool     `json:"can_view_blacklist"`
	CanViewAllTickets bool     `json:"can_view_all_tickets"`
	IsDeveloper       bool     `json:"is_developer"`
}

// Deleted reports whether this role is the sentinel for a removed department.
func (r *Role) Deleted() bool {
	return r != nil && r.Name == DeletedRoleName
}

// Member reports whether a client holding the given server groups belongs to
// this department.
func (r *Role) Member(groups []uint64) bool {
	if r == nil {
		return false
	}
	for _, g := range groups {
		for _, want := range r.ServerGroups {
			if g == want {
				return true
			}
		}
	}
	return false
}

// DeletedRole returns the sentinel role used when deserializing tickets whose
// department no longer exists.
func DeletedRole() *Role {
	return &Role{Name: DeletedRoleName}
}

// RoleSet is the immutable collection of configured departments.
type RoleSet struct {
	roles []*Role
}

// NewRoleSet validates department uniqueness and builds the set.
func NewRoleSet(roles []*Role) (*RoleSet, error) {
	seen := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if role.Name == "" {
			return nil, fmt.Errorf("role with empty department name")
		}
		if role.Name == DeletedRoleName {
			return nil, fmt.Errorf("department name %q is reserved", DeletedRoleName)
		}
		if _, dup := seen[role.Name]; dup {
			return nil, fmt.Errorf("duplicate department name %q", role.Name)
		}
		seen[role.Name] = struct{}{}
	}
	return &RoleSet{roles: roles}, nil
}

// All returns the configured roles in declaration order.
func (s *RoleSet) All() []*Role {
	return s.roles
}

// Len returns the number of configured departments.
func (s *RoleSet) Len() int {
	return len(s.roles)
}

// At returns the role at the given zero-based department index.
func (s *RoleSet) At(index int) (*Role, bool) {
	if index < 0 || index >= len(s.roles) {
		return nil, false
	}
	return s.roles[index], true
}

// ByName resolves a department by its unique name.
func (s *RoleSet) ByName(name string) (*Role, bool) {
	for _, role := range s.roles {
		if role.Name == name {
			return role, true
		}
	}
	return nil, false
}

// Matching returns every role whose group predicate matches the given server
// groups, optionally filtered to a single department name.
func (s *RoleSet) Matching(groups []uint64, department string) []*Role {
	var out []*Role
	for _, role := range s.roles {
		if department != "" && role.Name != department {
			continue
		}
		if role.Member(groups) {
			out = append(out, role)
		}
	}
	return out
}

// LoadRoles reads department definitions from a JSON file.
func LoadRoles(path string) ([]*Role, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}
	var roles []*Role
	if err := jsoniter.Unmarshal(raw, &roles); err != nil {
		return nil, fmt.Errorf("parse roles file %s: %w", path, err)
	}
	return roles, nil
}
