package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/mackeh/aegismask/internal/config"
)

// Role represents an RBAC role for API access.
type Role string

const (
	RoleAdmin    Role = "admin"    // full access, including list reloads
	RoleOperator Role = "operator" // filter text, view
	RoleViewer   Role = "viewer"   // lists, metrics and the event stream
)

type actorKey struct{}

// ActorFromContext returns the name of the API key that authenticated the
// request, or "anonymous" when auth is disabled.
func ActorFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok {
		return name
	}
	return "anonymous"
}

// AuthMiddleware enforces API key authentication and RBAC.
// If auth is not enabled, all requests pass through.
func AuthMiddleware(cfg config.AuthConfig, requiredRole Role, next http.HandlerFunc) http.HandlerFunc {
	if !cfg.Enabled {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		key, ok := authenticateToken(cfg.Keys, token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		if !hasPermission(Role(key.Role), requiredRole) {
			writeError(w, http.StatusForbidden, "insufficient permissions")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, key.Name)))
	}
}

// RequireRole adapts AuthMiddleware to router middleware.
func RequireRole(cfg config.AuthConfig, role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return AuthMiddleware(cfg, role, next.ServeHTTP)
	}
}

func extractToken(r *http.Request) string {
	// Check Authorization header: "Bearer <token>"
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}

	// Browsers cannot set headers on WebSocket upgrades.
	if key := r.URL.Query().Get("api_key"); key != "" {
		return key
	}

	return ""
}

func authenticateToken(keys []config.APIKey, token string) (config.APIKey, bool) {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k.Token), []byte(token)) == 1 {
			return k, true
		}
	}
	return config.APIKey{}, false
}

// hasPermission checks if the given role meets the required role level.
// admin > operator > viewer
func hasPermission(have, need Role) bool {
	levels := map[Role]int{
		RoleAdmin:    3,
		RoleOperator: 2,
		RoleViewer:   1,
	}
	return levels[have] >= levels[need] && levels[have] > 0
}
