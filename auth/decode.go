package auth

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tablewait/waitlist-admin/internal/jwtpayload"
)

// Claims is a typed view over the unverified token payload.
type Claims struct {
	Subject       string
	Username      string
	Role          Role
	HasRole       bool
	BusinessScope []string
	IssuedAt      *time.Time
	ExpiresAt     *time.Time
}

// Expired reports whether the token expired before now. Tokens without an
// exp claim never expire by this measure.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// DecodeRole extracts the role claim from tok. It returns false when the
// token carries no recognizable role or cannot be decoded.
func DecodeRole(tok string) (Role, bool) {
	claims, err := jwtpayload.Decode(tok)
	if err != nil {
		return "", false
	}
	return roleFromClaims(claims)
}

// DecodeBusinessScope extracts the business identifiers tok is scoped to.
// The result is never nil; order and duplicates are preserved.
func DecodeBusinessScope(tok string) []string {
	claims, err := jwtpayload.Decode(tok)
	if err != nil {
		return []string{}
	}
	return scopeFromClaims(claims)
}

// DecodeClaims returns the typed claims view, or ErrMalformedToken.
func DecodeClaims(tok string) (*Claims, error) {
	raw, err := jwtpayload.Decode(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	mc := jwt.MapClaims(raw)

	c := &Claims{BusinessScope: scopeFromClaims(raw)}
	c.Role, c.HasRole = roleFromClaims(raw)
	c.Subject, _ = mc.GetSubject()
	if u, ok := raw["username"].(string); ok && u != "" {
		c.Username = u
	} else {
		c.Username = c.Subject
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		t := exp.Time
		c.ExpiresAt = &t
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		t := iat.Time
		c.IssuedAt = &t
	}
	return c, nil
}

func roleFromClaims(claims map[string]any) (Role, bool) {
	if v, ok := claims["role"]; ok && v != nil {
		if s := coerceString(v); s != "" {
			return Role(s), true
		}
	}
	v, ok := claims["roles"]
	if !ok || v == nil {
		return "", false
	}
	blob := coerceString(v)
	for _, r := range knownRoles {
		if strings.Contains(blob, string(r)) {
			return r, true
		}
	}
	return "", false
}

func scopeFromClaims(claims map[string]any) []string {
	if v, ok := claims["businessIds"]; ok {
		if ids, isSlice := v.([]any); isSlice {
			out := make([]string, 0, len(ids))
			for _, id := range ids {
				out = append(out, coerceString(id))
			}
			return out
		}
	}
	if v, ok := claims["businessId"]; ok && v != nil {
		return []string{coerceString(v)}
	}
	return []string{}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
