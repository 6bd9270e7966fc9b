package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tablewait/waitlist-admin/internal/jwtpayload"
)

// ExpiryOption configures NewExpiryChecker.
type ExpiryOption func(*expiryChecker)

// WithExpiryLeeway tolerates clock skew when comparing exp and nbf.
func WithExpiryLeeway(d time.Duration) ExpiryOption {
	return func(c *expiryChecker) { c.leeway = d }
}

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) ExpiryOption {
	return func(c *expiryChecker) { c.now = now }
}

type expiryChecker struct {
	leeway time.Duration
	now    func() time.Time
}

// NewExpiryChecker returns a ValidityChecker that accepts a token whose
// payload decodes and carries an exp claim in the future. The signature is
// not verified. A token without exp is rejected.
func NewExpiryChecker(opts ...ExpiryOption) ValidityChecker {
	c := &expiryChecker{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *expiryChecker) CheckTokenValidity(ctx context.Context, tok string) (bool, error) {
	claims, err := jwtpayload.Decode(tok)
	if err != nil {
		return false, nil
	}
	v := jwt.NewValidator(
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err := v.Validate(jwt.MapClaims(claims)); err != nil {
		return false, nil
	}
	return true, nil
}
