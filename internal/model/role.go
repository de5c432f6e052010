package model

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a named capability tier. Authorization decisions are made
// against sets of roles, never a single primary role.
type Role string

const (
	RoleAttendee  Role = "attendee"
	RolePresenter Role = "presenter"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
	// RolePending marks a freshly registered account that has not yet
	// completed onboarding. Role-gated routes stay unreachable until the
	// user transitions out of it via the update-role endpoint.
	RolePending Role = "pending"
)

// rolePriority orders roles for display purposes only ("primary role").
// Lower value means higher priority. Never consulted for authorization.
var rolePriority = map[Role]int{
	RoleAdmin:     0,
	RoleOrganizer: 1,
	RolePresenter: 2,
	RoleAttendee:  3,
	RolePending:   4,
}

// ParseRole validates a single role name (case-insensitive).
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	_, ok := rolePriority[r]
	return r, ok
}

// RoleSet is a small set of roles. It is kept deduplicated and sorted
// by display priority so that serialization is deterministic.
type RoleSet []Role

// NewRoleSet builds a set from the given roles, dropping duplicates.
func NewRoleSet(roles ...Role) RoleSet {
	seen := make(map[Role]bool, len(roles))
	out := make(RoleSet, 0, len(roles))
	for _, r := range roles {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return rolePriority[out[i]] < rolePriority[out[j]] })
	return out
}

// ParseRoleSet parses the comma-joined form stored in the users table.
// Unknown role names are rejected so that a corrupted row surfaces as an
// error instead of silently granting or dropping capabilities.
func ParseRoleSet(s string) (RoleSet, error) {
	parts := strings.Split(s, ",")
	roles := make([]Role, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		r, ok := ParseRole(p)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", p)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("empty role set")
	}
	return NewRoleSet(roles...), nil
}

// ParseRoleNames converts a slice of role names (e.g. a JWT roles claim)
// into a RoleSet.
func ParseRoleNames(names []string) (RoleSet, error) {
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		r, ok := ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", n)
		}
		roles = append(roles, r)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("empty role set")
	}
	return NewRoleSet(roles...), nil
}

// String returns the comma-joined storage form, in priority order.
func (rs RoleSet) String() string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = string(r)
	}
	return strings.Join(names, ",")
}

// Names returns the set as plain strings for JWT claims and JSON bodies.
func (rs RoleSet) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = string(r)
	}
	return names
}

// Has reports whether the set contains r.
func (rs RoleSet) Has(r Role) bool {
	for _, have := range rs {
		if have == r {
			return true
		}
	}
	return false
}

// Intersects reports whether the set contains any of the given roles.
func (rs RoleSet) Intersects(roles ...Role) bool {
	for _, r := range roles {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Primary returns the highest-priority role for display. The set is
// already sorted by priority.
func (rs RoleSet) Primary() Role {
	if len(rs) == 0 {
		return RolePending
	}
	return rs[0]
}

// OnboardingPending reports whether the user still has to pick a real
// role: the set is exactly {pending}.
func (rs RoleSet) OnboardingPending() bool {
	return len(rs) == 1 && rs[0] == RolePending
}
