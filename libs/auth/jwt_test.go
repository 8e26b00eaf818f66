package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func providerClaims(providerID string, ttl time.Duration) Claims {
	now := time.Now()
	return Claims{
		ProviderID: providerID,
		Role:       "provider",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-" + providerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	token, err := SignHS256(providerClaims("prov-1", time.Hour), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := NewVerifier("test-secret", nil).Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if parsed.Provider() != "prov-1" || parsed.Role != "provider" {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := NewVerifier("wrong-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	token, err := SignHS256(providerClaims("prov-1", -time.Minute), "test-secret")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := NewVerifier("test-secret", nil).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, providerClaims("prov-2", time.Hour))
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign rs256: %v", err)
	}

	v := NewVerifier("", NewJWKSClient(srv.URL, time.Minute))
	for i := 0; i < 2; i++ {
		parsed, err := v.Verify(signed)
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if parsed.Provider() != "prov-2" {
			t.Fatalf("claims mismatch: got %+v", parsed)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("expected keys to be cached, endpoint hit %d times", n)
	}

	// HS256 is refused when no shared secret is configured.
	hs, _ := SignHS256(providerClaims("prov-2", time.Hour), "any")
	if _, err := v.Verify(hs); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected hs256 to be refused, got %v", err)
	}
}

func TestRequireProviderOverridesSpoofedHeader(t *testing.T) {
	v := NewVerifier("test-secret", nil)
	h := RequireProvider(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("X-Provider-Id")))
	}))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/api/v1/providers/busy-status", nil))
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rw.Code)
	}

	token, _ := SignHS256(providerClaims("prov-1", time.Hour), "test-secret")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers/busy-status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Provider-Id", "prov-evil")
	rwOK := httptest.NewRecorder()
	h.ServeHTTP(rwOK, req)
	if rwOK.Code != http.StatusOK || rwOK.Body.String() != "prov-1" {
		t.Fatalf("expected verified provider, got %d %q", rwOK.Code, rwOK.Body.String())
	}

	reqBad := httptest.NewRequest(http.MethodGet, "/api/v1/providers/busy-status", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rwBad.Code)
	}
}
