package auth

import "strings"

// Role is the privilege level attached to an identity. Roles are strictly
// ordered: RoleUser < RoleAdmin < RoleSysadmin.
type Role int

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSysadmin
)

// Roles lists every role in ascending order.
var Roles = []Role{RoleUser, RoleAdmin, RoleSysadmin}

// ParseRole maps a role claim to a Role. Empty or unknown claims are RoleUser.
func ParseRole(claim string) Role {
	switch strings.ToLower(strings.TrimSpace(claim)) {
	case "admin":
		return RoleAdmin
	case "sysadmin":
		return RoleSysadmin
	default:
		return RoleUser
	}
}

// RoleFromClaims extracts the "role" custom claim from a claims map.
func RoleFromClaims(claims map[string]any) Role {
	if claims == nil {
		return RoleUser
	}
	v, ok := claims["role"].(string)
	if !ok {
		return RoleUser
	}
	return ParseRole(v)
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleSysadmin:
		return "sysadmin"
	default:
		return "user"
	}
}

// AtLeast reports whether r is at or above min in the role order.
func (r Role) AtLeast(min Role) bool {
	return r.normalize() >= min
}

// IsAdminTier reports whether r is admin or sysadmin.
func (r Role) IsAdminTier() bool { return r.AtLeast(RoleAdmin) }

func (r Role) normalize() Role {
	if r < RoleUser || r > RoleSysadmin {
		return RoleUser
	}
	return r
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	*r = ParseRole(string(b))
	return nil
}
