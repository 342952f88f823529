package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	PublicKeyPEM string
	JWKSURL      string
	SecretKey    string

	// Algorithm is "RS256" or "HS256".
	Algorithm string

	JWKSRefreshInterval time.Duration
	JWKSCacheTimeout    time.Duration
}

// JWK is one JSON Web Key.
type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSet is a JSON Web Key Set.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKSCacheEntry is a cached JWKS key.
type JWKSCacheEntry struct {
	Key       *rsa.PublicKey
	Timestamp time.Time
}

// Verifier checks token signatures and extracts claims.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey

	// fetchMu serializes JWKS refreshes; jwksMutex guards the cache.
	fetchMu   sync.Mutex
	jwksMutex sync.RWMutex
	jwksCache map[string]*JWKSCacheEntry
	lastFetch time.Time

	httpClient *http.Client
	now        func() time.Time
}

// NewVerifier creates a verifier. With a JWKS URL the key set is fetched
// immediately.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	if config.JWKSRefreshInterval <= 0 {
		config.JWKSRefreshInterval = 5 * time.Minute
	}
	if config.JWKSCacheTimeout <= 0 {
		config.JWKSCacheTimeout = time.Hour
	}
	v := &Verifier{
		config:     config,
		jwksCache:  make(map[string]*JWKSCacheEntry),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}

	switch config.Algorithm {
	case "RS256":
		if config.PublicKeyPEM == "" && config.JWKSURL == "" {
			return nil, fmt.Errorf("RS256 requires a public key or a JWKS URL")
		}
		if config.PublicKeyPEM != "" {
			if err := v.loadPublicKeyFromPEM(config.PublicKeyPEM); err != nil {
				return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
			}
		}
		if config.JWKSURL != "" {
			if err := v.refreshJWKS(); err != nil {
				return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
			}
		}
	case "HS256":
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}
	return v, nil
}

// VerifyToken verifies a JWT and returns its claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, v.keyFunc,
		jwt.WithValidMethods([]string{v.config.Algorithm}),
		jwt.WithTimeFunc(v.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(*jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return v.extractClaimsFromMap(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	if v.config.Algorithm == "HS256" {
		return []byte(v.config.SecretKey), nil
	}
	kid, ok := token.Header["kid"].(string)
	if !ok {
		if v.publicKey == nil {
			return nil, fmt.Errorf("no public key available")
		}
		return v.publicKey, nil
	}
	key, err := v.getKeyFromJWKS(kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get key from JWKS: %w", err)
	}
	return key, nil
}

func (v *Verifier) extractClaimsFromMap(claims *jwt.MapClaims) (*Claims, error) {
	sub, ok := (*claims)["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}
	roles, err := extractStringSlice(claims, "roles")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'roles' claim: %w", err)
	}
	scopes, err := extractStringSlice(claims, "scopes")
	if err != nil {
		return nil, fmt.Errorf("missing or invalid 'scopes' claim: %w", err)
	}
	if !allKnown(roles, RoleViewer, RoleController) {
		return nil, fmt.Errorf("invalid roles: %v", roles)
	}
	if !allKnown(scopes, ScopeRead, ScopeControl, ScopeTelemetry) {
		return nil, fmt.Errorf("invalid scopes: %v", scopes)
	}
	return &Claims{Subject: sub, Roles: roles, Scopes: scopes}, nil
}

func extractStringSlice(claims *jwt.MapClaims, key string) ([]string, error) {
	value, ok := (*claims)[key]
	if !ok {
		return nil, fmt.Errorf("missing claim: %s", key)
	}
	switch val := value.(type) {
	case []string:
		return val, nil
	case []interface{}:
		result := make([]string, len(val))
		for i, item := range val {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid %s claim: not a string", key)
			}
			result[i] = str
		}
		return result, nil
	default:
		return nil, fmt.Errorf("invalid %s claim: not a string array", key)
	}
}

func allKnown(values []string, known ...string) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		found := false
		for _, k := range known {
			if v == k {
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

func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}
	v.publicKey = rsaPub
	return nil
}

// refreshJWKS fetches the key set and replaces cached keys. It takes the
// cache lock only to store the result.
func (v *Verifier) refreshJWKS() error {
	resp, err := v.httpClient.Get(v.config.JWKSURL)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS fetch failed with status: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}
	var jwks JWKSet
	if err := json.Unmarshal(body, &jwks); err != nil {
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	now := v.now()
	keys := make(map[string]*JWKSCacheEntry, len(jwks.Keys))
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || (key.Use != "" && key.Use != "sig") || (key.Alg != "" && key.Alg != "RS256") {
			continue
		}
		pubKey, err := jwkToRSAPublicKey(key)
		if err != nil {
			continue
		}
		keys[key.Kid] = &JWKSCacheEntry{Key: pubKey, Timestamp: now}
	}

	v.jwksMutex.Lock()
	v.jwksCache = keys
	v.lastFetch = now
	v.jwksMutex.Unlock()
	return nil
}

// getKeyFromJWKS returns the key for kid, refreshing the set when the key
// is unknown or stale and the refresh interval has passed.
func (v *Verifier) getKeyFromJWKS(kid string) (*rsa.PublicKey, error) {
	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}
	if v.config.JWKSURL == "" {
		return nil, fmt.Errorf("key not found: %s", kid)
	}

	v.fetchMu.Lock()
	defer v.fetchMu.Unlock()

	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}
	v.jwksMutex.RLock()
	due := v.now().Sub(v.lastFetch) >= v.config.JWKSRefreshInterval
	v.jwksMutex.RUnlock()
	if !due {
		return nil, fmt.Errorf("key not found: %s", kid)
	}
	if err := v.refreshJWKS(); err != nil {
		return nil, fmt.Errorf("failed to refresh JWKS: %w", err)
	}
	if key, ok := v.cachedKey(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("key not found: %s", kid)
}

func (v *Verifier) cachedKey(kid string) (*rsa.PublicKey, bool) {
	v.jwksMutex.RLock()
	defer v.jwksMutex.RUnlock()
	entry, ok := v.jwksCache[kid]
	if !ok || v.now().Sub(entry.Timestamp) >= v.config.JWKSCacheTimeout {
		return nil, false
	}
	return entry.Key, true
}

func jwkToRSAPublicKey(jwk JWK) (*rsa.PublicKey, error) {
	n, err := base64URLDecode(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	e, err := base64URLDecode(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 || len(e) > 4 {
		return nil, fmt.Errorf("invalid RSA key parameters")
	}
	var exp int
	for _, b := range e {
		exp = exp<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}

// base64URLDecode accepts base64url with or without padding.
func base64URLDecode(data string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}
