// Package auth carries the caller identity supplied by the upstream gateway.
//
// Authentication happens before requests reach the ledger; the gateway forwards
// the authenticated user in X-User-ID and their role in X-User-Role.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/aristath/ledger/internal/utils"
	"github.com/rs/zerolog"
)

// Header names set by the gateway
const (
	HeaderUserID = "X-User-ID"
	HeaderRole   = "X-User-Role"
)

// Role is a caller's authorization level
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the caller may issue ledger mutations
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored in ctx, if any
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// ActorID returns the caller's user ID, or "system" when no identity is present
func ActorID(ctx context.Context) string {
	if id, ok := FromContext(ctx); ok && id.UserID != "" {
		return id.UserID
	}
	return "system"
}

// Middleware reads the identity headers into the request context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID != "" {
			id := Identity{
				UserID: userID,
				Role:   Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderRole)))),
			}
			r = r.WithContext(WithIdentity(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects mutating requests from anyone but an ADMIN.
// Safe methods pass through untouched.
func RequireAdmin(log zerolog.Logger) func(http.Handler) http.Handler {
	log = log.With().Str("component", "auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			id, ok := FromContext(r.Context())
			if !ok {
				utils.WriteError(w, http.StatusUnauthorized, "missing caller identity", log)
				return
			}
			if !id.IsAdmin() {
				log.Warn().
					Str("user_id", id.UserID).
					Str("role", string(id.Role)).
					Str("path", r.URL.Path).
					Msg("Rejected non-admin ledger mutation")
				utils.WriteError(w, http.StatusForbidden, "admin role required", log)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
