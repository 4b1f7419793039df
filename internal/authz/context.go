package authz

import (
	"context"
	"net/http"

	"github.com/SomaOhm/Goal-Tracking-App/internal/models"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userRolesKey contextKey = "user_roles"
)

// WithIdentity stores user and role information on the context. Callers without any role are
// treated as plain users.
func WithIdentity(ctx context.Context, userID string, roles []models.UserRole) context.Context {
	if userID != "" {
		ctx = context.WithValue(ctx, userIDKey, userID)
	}
	normalized := models.NormalizeRoles(roles)
	if len(normalized) == 0 {
		normalized = []models.UserRole{models.RoleUser}
	}
	return context.WithValue(ctx, userRolesKey, normalized)
}

func UserIDFromRequest(r *http.Request) (string, bool) {
	uid, ok := r.Context().Value(userIDKey).(string)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func RolesFromRequest(r *http.Request) ([]models.UserRole, bool) {
	roles, ok := r.Context().Value(userRolesKey).([]models.UserRole)
	if !ok || len(roles) == 0 {
		return nil, false
	}
	return roles, true
}

// CanActFor reports whether the requester may read data of userID: their own, or anyone's with
// at least the mentor role.
func CanActFor(r *http.Request, userID string) bool {
	if uid, ok := UserIDFromRequest(r); ok && uid == userID {
		return true
	}
	roles, ok := RolesFromRequest(r)
	return ok && models.HasAtLeast(roles, models.RoleMentor)
}
