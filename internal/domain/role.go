package domain

import "strings"

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleManager Role = "MANAGER"
	RoleStaff   Role = "STAFF"
	RoleFinance Role = "FINANCE"
)

// ParseRole accepts "admin", "ADMIN" and "ROLE_ADMIN" alike.
func ParseRole(raw string) (Role, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "ROLE_")
	switch Role(name) {
	case RoleAdmin, RoleManager, RoleStaff, RoleFinance:
		return Role(name), true
	}
	return "", false
}

func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	return names
}
