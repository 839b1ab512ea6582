package service

import (
	"slices"

	"github.com/jonesrussell/north-cloud/visitor-analytics/infrastructure/jwt"
)

// AdminRole is the role claim granting dashboard access.
const AdminRole = "admin"

// Admins decides which authenticated operators may read the dashboard.
type Admins struct {
	subjects []string
}

// NewAdmins creates an Admins allowing the admin role and the listed subjects.
func NewAdmins(subjects []string) *Admins {
	return &Admins{subjects: subjects}
}

// IsAdmin reports whether the token holder is an administrator.
func (a *Admins) IsAdmin(claims *jwt.Claims) bool {
	if claims == nil {
		return false
	}
	if claims.Role == AdminRole {
		return true
	}
	return claims.Sub != "" && slices.Contains(a.subjects, claims.Sub)
}
