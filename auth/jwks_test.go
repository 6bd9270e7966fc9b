package auth_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tablewait/waitlist-admin/auth"
)

func genRSA(t *testing.T) (*rsa.PrivateKey, string, []byte) {
	t.Helper()
	pk, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	kid := "test-key"
	jwk := jose.JSONWebKey{Key: &pk.PublicKey, KeyID: kid, Algorithm: "RS256", Use: "sig"}
	set := struct {
		Keys []jose.JSONWebKey `json:"keys"`
	}{Keys: []jose.JSONWebKey{jwk}}
	b, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("marshal jwks: %v", err)
	}
	return pk, kid, b
}

func signToken(t *testing.T, pk *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	s, err := tok.SignedString(pk)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func newJWKSServer(t *testing.T, jwks []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwks)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSChecker(t *testing.T) {
	pk, kid, jwks := genRSA(t)
	srv := newJWKSServer(t, jwks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := auth.DefaultJWKSConfig()
	cfg.Issuer = "waitlist-api"
	cfg.Leeway = 0
	c, err := auth.NewJWKSChecker(ctx, srv.URL, cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	now := time.Now()
	good := signToken(t, pk, kid, jwt.MapClaims{
		"iss":  "waitlist-api",
		"sub":  "owner",
		"role": "BUSINESS_OWNER",
		"exp":  now.Add(time.Hour).Unix(),
	})
	if ok, err := c.CheckTokenValidity(ctx, good); !ok || err != nil {
		t.Fatalf("good token: ok=%v err=%v", ok, err)
	}

	expired := signToken(t, pk, kid, jwt.MapClaims{"iss": "waitlist-api", "exp": now.Add(-time.Hour).Unix()})
	if ok, _ := c.CheckTokenValidity(ctx, expired); ok {
		t.Fatal("expired token accepted")
	}

	wrongIss := signToken(t, pk, kid, jwt.MapClaims{"iss": "someone-else", "exp": now.Add(time.Hour).Unix()})
	if ok, _ := c.CheckTokenValidity(ctx, wrongIss); ok {
		t.Fatal("issuer mismatch accepted")
	}

	other, _, _ := genRSA(t)
	forged := signToken(t, other, kid, jwt.MapClaims{"iss": "waitlist-api", "exp": now.Add(time.Hour).Unix()})
	if ok, _ := c.CheckTokenValidity(ctx, forged); ok {
		t.Fatal("token signed by unknown key accepted")
	}

	if ok, _ := c.CheckTokenValidity(ctx, ""); ok {
		t.Fatal("empty token accepted")
	}
}

func TestJWKSChecker_RequiresURL(t *testing.T) {
	if _, err := auth.NewJWKSChecker(context.Background(), "", nil); err == nil {
		t.Fatal("expected error for empty jwks url")
	}
}
