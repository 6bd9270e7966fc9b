package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSConfig controls signature verification for NewJWKSChecker.
type JWKSConfig struct {
	// Issuer, when set, must match the iss claim.
	Issuer string
	// Audience, when set, must appear in the aud claim.
	Audience    string
	AllowedAlgs []string
	Leeway      time.Duration
}

// DefaultJWKSConfig returns a JWKSConfig with safe algorithm + leeway defaults.
func DefaultJWKSConfig() *JWKSConfig {
	return &JWKSConfig{AllowedAlgs: []string{"RS256"}, Leeway: 30 * time.Second}
}

type jwksChecker struct {
	cfg     *JWKSConfig
	keyfunc jwt.Keyfunc
}

// NewJWKSChecker constructs a checker that verifies the token signature with
// keys fetched (and refreshed) from jwksURL, then enforces exp.
func NewJWKSChecker(ctx context.Context, jwksURL string, cfg *JWKSConfig) (ValidityChecker, error) {
	if jwksURL == "" {
		return nil, errors.New("auth: jwks url required")
	}
	if cfg == nil {
		cfg = DefaultJWKSConfig()
	}
	if len(cfg.AllowedAlgs) == 0 {
		cfg.AllowedAlgs = []string{"RS256"}
	}

	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("auth: jwks init failed: %w", err)
	}

	return &jwksChecker{cfg: cfg, keyfunc: func(t *jwt.Token) (any, error) {
		alg := t.Method.Alg()
		if !slices.Contains(cfg.AllowedAlgs, alg) {
			return nil, fmt.Errorf("disallowed alg: %s", alg)
		}
		return kf.Keyfunc(t)
	}}, nil
}

func (c *jwksChecker) CheckTokenValidity(ctx context.Context, tok string) (bool, error) {
	if tok == "" {
		return false, nil
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(c.cfg.AllowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.cfg.Leeway),
	}
	if c.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.cfg.Issuer))
	}
	if c.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.cfg.Audience))
	}

	if _, err := jwt.NewParser(opts...).Parse(tok, c.keyfunc); err != nil {
		// A missing key may be a transient JWKS fetch problem rather than a
		// verdict on the token.
		if errors.Is(err, jwt.ErrTokenUnverifiable) {
			return false, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return false, nil
	}
	return true, nil
}
