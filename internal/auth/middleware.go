package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Claims are the authorization facts carried by a verified token.
type Claims struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
	Scopes  []string `json:"scopes"`
}

type claimsKey struct{}

const (
	RoleViewer     = "viewer"
	RoleController = "controller"
)

const (
	ScopeRead      = "read"
	ScopeControl   = "control"
	ScopeTelemetry = "telemetry"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	VerifyToken(token string) (*Claims, error)
}

// Middleware authenticates requests and enforces scopes.
type Middleware struct {
	verifier TokenVerifier
}

// NewMiddleware returns middleware checking tokens with verifier.
func NewMiddleware(verifier TokenVerifier) *Middleware {
	return &Middleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// claims in the request context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			return
		}
		claims, err := m.verifier.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
			return
		}
		next(w, r.WithContext(WithClaims(r.Context(), claims)))
	}
}

// RequireScope rejects requests whose claims lack any of requiredScopes.
func (m *Middleware) RequireScope(requiredScopes ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFrom(r.Context())
			if claims == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}
			if !claims.HasScopes(requiredScopes...) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient permissions")
				return
			}
			next(w, r)
		}
	}
}

// Protect is RequireAuth followed by RequireScope(scope).
func (m *Middleware) Protect(scope string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(m.RequireScope(scope)(next))
}

// HasScopes reports whether c carries every scope.
func (c *Claims) HasScopes(scopes ...string) bool {
	if c == nil {
		return false
	}
	for _, required := range scopes {
		found := false
		for _, s := range c.Scopes {
			if s == required {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by RequireAuth, or nil.
func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey{}).(*Claims)
	return claims
}

func extractBearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("invalid Authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty token")
	}
	return token, nil
}

var correlationSeq atomic.Uint64

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"result":        "error",
		"code":          code,
		"message":       message,
		"correlationId": fmt.Sprintf("%d-%d", time.Now().UnixNano(), correlationSeq.Add(1)),
	})
}
