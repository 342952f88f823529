package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func controllerClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "operator-1",
		"roles":  []string{RoleController},
		"scopes": []string{ScopeRead, ScopeControl, ScopeTelemetry},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func signHS256(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func publicPEM(t *testing.T, key *rsa.PrivateKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func toJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// jwksServer serves whatever key set is currently stored and counts fetches.
type jwksServer struct {
	mu      sync.Mutex
	keys    JWKSet
	fetches atomic.Int32
	srv     *httptest.Server
}

func newJWKSServer(t *testing.T, keys ...JWK) *jwksServer {
	t.Helper()
	s := &jwksServer{keys: JWKSet{Keys: keys}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.fetches.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewEncoder(w).Encode(s.keys)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *jwksServer) set(keys ...JWK) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = JWKSet{Keys: keys}
}

func TestNewVerifierConfigs(t *testing.T) {
	key := newRSAKey(t)
	tests := []struct {
		name    string
		config  VerifierConfig
		wantErr bool
	}{
		{"RS256 with PEM", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: publicPEM(t, key)}, false},
		{"RS256 without key source", VerifierConfig{Algorithm: "RS256"}, true},
		{"RS256 with bad PEM", VerifierConfig{Algorithm: "RS256", PublicKeyPEM: "not pem"}, true},
		{"RS256 with unreachable JWKS", VerifierConfig{Algorithm: "RS256", JWKSURL: "http://127.0.0.1:1/jwks"}, true},
		{"HS256", VerifierConfig{Algorithm: "HS256", SecretKey: testSecret}, false},
		{"HS256 without secret", VerifierConfig{Algorithm: "HS256"}, true},
		{"unsupported", VerifierConfig{Algorithm: "ES256"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, v)
		})
	}
}

func TestVerifyHS256(t *testing.T) {
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	require.NoError(t, err)

	claims, err := v.VerifyToken(signHS256(t, controllerClaims(), testSecret))
	require.NoError(t, err)
	assert.Equal(t, "operator-1", claims.Subject)
	assert.True(t, claims.HasScopes(ScopeControl, ScopeRead))

	expired := controllerClaims()
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noSub := controllerClaims()
	delete(noSub, "sub")
	badScope := controllerClaims()
	badScope["scopes"] = []string{"radio:admin"}
	noRoles := controllerClaims()
	noRoles["roles"] = []string{}

	rejects := map[string]string{
		"wrong secret":  signHS256(t, controllerClaims(), "other"),
		"expired":       signHS256(t, expired, testSecret),
		"missing sub":   signHS256(t, noSub, testSecret),
		"unknown scope": signHS256(t, badScope, testSecret),
		"empty roles":   signHS256(t, noRoles, testSecret),
		"garbage":       "a.b.c",
		"blank":         "  ",
	}
	for name, tok := range rejects {
		t.Run(name, func(t *testing.T) {
			_, err := v.VerifyToken(tok)
			assert.Error(t, err)
		})
	}
}

func TestVerifyRejectsAlgorithmSwitch(t *testing.T) {
	key := newRSAKey(t)
	v, err := NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: testSecret})
	require.NoError(t, err)

	_, err = v.VerifyToken(signRS256(t, key, "", controllerClaims()))
	assert.Error(t, err)
}

func TestVerifyRS256WithPEM(t *testing.T) {
	key := newRSAKey(t)
	v, err := NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: publicPEM(t, key)})
	require.NoError(t, err)

	claims, err := v.VerifyToken(signRS256(t, key, "", controllerClaims()))
	require.NoError(t, err)
	assert.Equal(t, []string{RoleController}, claims.Roles)

	_, err = v.VerifyToken(signRS256(t, newRSAKey(t), "", controllerClaims()))
	assert.Error(t, err)
}

func TestVerifyRS256WithJWKS(t *testing.T) {
	key := newRSAKey(t)
	srv := newJWKSServer(t, toJWK("k1", &key.PublicKey))

	v, err := NewVerifier(VerifierConfig{Algorithm: "RS256", JWKSURL: srv.srv.URL})
	require.NoError(t, err)

	_, err = v.VerifyToken(signRS256(t, key, "k1", controllerClaims()))
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.fetches.Load())
}

func TestJWKSRefreshOnUnknownKid(t *testing.T) {
	k1, k2 := newRSAKey(t), newRSAKey(t)
	srv := newJWKSServer(t, toJWK("k1", &k1.PublicKey))

	now := time.Now()
	v, err := NewVerifier(VerifierConfig{
		Algorithm:           "RS256",
		JWKSURL:             srv.srv.URL,
		JWKSRefreshInterval: time.Minute,
	})
	require.NoError(t, err)
	v.now = func() time.Time { return now }

	srv.set(toJWK("k1", &k1.PublicKey), toJWK("k2", &k2.PublicKey))
	tok := signRS256(t, k2, "k2", controllerClaims())

	// Inside the refresh interval the unknown kid is rejected without a fetch.
	_, err = v.VerifyToken(tok)
	assert.Error(t, err)
	assert.Equal(t, int32(1), srv.fetches.Load())

	now = now.Add(2 * time.Minute)
	v.now = func() time.Time { return now }

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = v.VerifyToken(tok)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2), srv.fetches.Load())
}

func TestBase64URLDecode(t *testing.T) {
	for _, in := range []string{"AQAB", "AQAB=", "-_8", "-_8="} {
		_, err := base64URLDecode(in)
		assert.NoError(t, err, in)
	}
	b, err := base64URLDecode("AQAB")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 1}, b)

	_, err = base64URLDecode("!!")
	assert.Error(t, err)
}

func TestJWKToRSAPublicKey(t *testing.T) {
	key := newRSAKey(t)
	pub, err := jwkToRSAPublicKey(toJWK("k", &key.PublicKey))
	require.NoError(t, err)
	assert.True(t, key.PublicKey.Equal(pub))

	_, err = jwkToRSAPublicKey(JWK{Kty: "RSA", N: "", E: "AQAB"})
	assert.Error(t, err)
}
