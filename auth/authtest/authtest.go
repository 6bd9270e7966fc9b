// Package authtest mints unsigned tokens for tests.
package authtest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token returns a compact JWT carrying claims, signed with the "none"
// algorithm. It is only suitable for code paths that read claims without
// verifying them.
func Token(t testing.TB, claims map[string]any) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims(claims))
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("authtest: sign: %v", err)
	}
	return s
}

// ValidToken returns a token that expires in an hour with the given extra
// claims merged in.
func ValidToken(t testing.TB, claims map[string]any) string {
	t.Helper()
	return Token(t, withExp(claims, time.Now().Add(time.Hour)))
}

// ExpiredToken returns a token whose exp lies an hour in the past.
func ExpiredToken(t testing.TB, claims map[string]any) string {
	t.Helper()
	return Token(t, withExp(claims, time.Now().Add(-time.Hour)))
}

func withExp(claims map[string]any, exp time.Time) map[string]any {
	out := map[string]any{"sub": "test-user", "exp": exp.Unix()}
	for k, v := range claims {
		out[k] = v
	}
	return out
}
