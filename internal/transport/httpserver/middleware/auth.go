package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/saulpulido52/litam-sub010/internal/config"
)

const (
	RolePatient      = "patient"
	RoleProfessional = "professional"
)

// Identity is the authenticated caller as asserted by the access
// gateway. Token validation happens upstream; this service trusts the
// identity headers the gateway forwards.
type Identity struct {
	UserID string
	Role   string
}

type contextKey int

const identityKey contextKey = iota

const (
	headerUserID = "X-User-Id"
	headerRole   = "X-User-Role"
)

type GatewayAuth struct {
	skipAuth bool
	mock     Identity
}

func NewGatewayAuth(cfg config.AuthConfig) *GatewayAuth {
	return &GatewayAuth{
		skipAuth: cfg.SkipAuth,
		mock: Identity{
			UserID: strings.TrimSpace(cfg.MockUserID),
			Role:   strings.TrimSpace(cfg.MockUserRole),
		},
	}
}

func (a *GatewayAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipAuth {
			if a.mock.UserID == "" || !validRole(a.mock.Role) {
				writeError(w, http.StatusInternalServerError, "auth_not_configured", "auth mock identity not configured")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), a.mock)))
			return
		}

		identity := Identity{
			UserID: strings.TrimSpace(r.Header.Get(headerUserID)),
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(headerRole))),
		}
		if identity.UserID == "" || !validRole(identity.Role) {
			writeError(w, http.StatusUnauthorized, "invalid_identity", "missing or invalid gateway identity")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func validRole(role string) bool {
	return role == RolePatient || role == RoleProfessional
}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
