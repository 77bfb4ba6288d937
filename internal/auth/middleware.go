package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/radio-control/wifid/internal/audit"
)

var log = logging.Logger("auth")

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles,omitempty"`
	Scopes  []string `json:"scopes"`
}

// ContextKey is used for storing claims in request context.
type ContextKey string

const (
	ClaimsKey ContextKey = "claims"
)

// Scopes.
const (
	ScopeRead      = "wifi:read"
	ScopeControl   = "wifi:control"
	ScopeTelemetry = "telemetry"
)

var knownScopes = []string{ScopeRead, ScopeControl, ScopeTelemetry}

// anonymous is attached to every request when authentication is disabled.
var anonymous = &Claims{Subject: "anonymous", Scopes: knownScopes}

// TokenVerifier verifies bearer tokens.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware handles authentication and authorization.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware creates the auth middleware. A nil verifier disables authentication: every
// request is treated as an anonymous caller holding all scopes.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// Enabled reports whether tokens are checked.
func (m *Middleware) Enabled() bool {
	return m.verifier != nil
}

// RequireAuth verifies the bearer token, stores the claims in the request context and
// records the subject as the audit user.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := anonymous
		if m.verifier != nil {
			token, err := extractBearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			claims, err = m.verifier.VerifyToken(token)
			if err != nil {
				log.Debugf("rejected token for %s %s: %v", r.Method, r.URL.Path, err)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				return
			}
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = audit.WithUser(ctx, claims.Subject)
		next(w, r.WithContext(ctx))
	}
}

// RequireScope rejects requests whose claims lack any of the required scopes.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromRequest(r)
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if !hasRequiredScopes(claims, requiredScopes) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}

// Protect is RequireAuth followed by RequireScope.
func (m *Middleware) Protect(next http.HandlerFunc, requiredScopes ...string) http.HandlerFunc {
	return m.RequireAuth(m.RequireScope(requiredScopes...)(next))
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

func hasRequiredScopes(claims *Claims, requiredScopes []string) bool {
	for _, required := range requiredScopes {
		if !slices.Contains(claims.Scopes, required) {
			return false
		}
	}
	return true
}

// GetClaimsFromRequest extracts claims from the request context.
func GetClaimsFromRequest(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ClaimsKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}

// writeError writes an error response in the API envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": uuid.NewString(),
	})
}
