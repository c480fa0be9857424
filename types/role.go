package types

import (
	"fmt"
	"strings"
)

// Role is the closed set of authorization levels in the system.
// Roles form a total order: employee < manager < admin.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// DefaultRole is assigned when a registration omits the role field.
const DefaultRole = RoleEmployee

var roleRank = map[Role]int{
	RoleEmployee: 1,
	RoleManager:  2,
	RoleAdmin:    3,
}

// ParseRole validates a raw role string. The empty string maps to
// DefaultRole so request payloads may omit it.
func ParseRole(raw string) (Role, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return DefaultRole, nil
	}
	role := Role(raw)
	if !role.Valid() {
		return "", fmt.Errorf("invalid role %q", raw)
	}
	return role, nil
}

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether the role meets or exceeds the threshold.
// Unknown roles never satisfy any threshold.
func (r Role) AtLeast(threshold Role) bool {
	rank, ok := roleRank[r]
	want, wantOK := roleRank[threshold]
	return ok && wantOK && rank >= want
}

func (r Role) String() string {
	return string(r)
}
