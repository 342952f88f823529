package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVerifier map[string]*Claims

func (s staticVerifier) VerifyToken(token string) (*Claims, error) {
	if c, ok := s[token]; ok {
		return c, nil
	}
	return nil, errors.New("unknown token")
}

var testTokens = staticVerifier{
	"viewer": {
		Subject: "v",
		Roles:   []string{RoleViewer},
		Scopes:  []string{ScopeRead, ScopeTelemetry},
	},
	"controller": {
		Subject: "c",
		Roles:   []string{RoleController},
		Scopes:  []string{ScopeRead, ScopeControl, ScopeTelemetry},
	},
}

func TestProtect(t *testing.T) {
	m := NewMiddleware(testTokens)
	var seen *Claims
	h := m.Protect(ScopeControl, func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"empty bearer", "Bearer ", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing scope", "Bearer viewer", http.StatusForbidden, "FORBIDDEN"},
		{"allowed", "Bearer controller", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPut, "/api/v1/fh/active", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code == "" {
				require.NotNil(t, seen)
				assert.Equal(t, "c", seen.Subject)
				return
			}
			assert.Nil(t, seen)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "error", body["result"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["correlationId"])
		})
	}
}

func TestRequireScopeWithoutAuth(t *testing.T) {
	m := NewMiddleware(testTokens)
	h := m.RequireScope(ScopeRead)(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHasScopes(t *testing.T) {
	var nilClaims *Claims
	assert.False(t, nilClaims.HasScopes(ScopeRead))
	c := testTokens["viewer"]
	assert.True(t, c.HasScopes())
	assert.True(t, c.HasScopes(ScopeRead, ScopeTelemetry))
	assert.False(t, c.HasScopes(ScopeRead, ScopeControl))
}
