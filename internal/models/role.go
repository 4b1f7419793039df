package models

import "strings"

// UserRole is the access tier carried in API tokens.
type UserRole string

const (
	RoleUser   UserRole = "user"
	RoleMentor UserRole = "mentor"
	RoleAdmin  UserRole = "admin"
)

var roleRank = map[UserRole]int{
	RoleUser:   1,
	RoleMentor: 2,
	RoleAdmin:  3,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleRank[role]
	return ok
}

// NormalizeRoles lowercases, trims and de-duplicates roles.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]struct{}, len(roles))
	out := make([]UserRole, 0, len(roles))
	for _, r := range roles {
		n := UserRole(strings.ToLower(strings.TrimSpace(string(r))))
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// HasAtLeast reports whether any of roles ranks at or above required.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	for _, r := range roles {
		if roleRank[r] >= roleRank[required] {
			return true
		}
	}
	return false
}
