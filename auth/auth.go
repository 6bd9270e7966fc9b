package auth

import (
	"context"
	"errors"
)

// ErrMalformedToken indicates a token whose claims segment could not be read.
var ErrMalformedToken = errors.New("auth: malformed token")

// ErrUnauthorized indicates a token failed a validity check.
var ErrUnauthorized = errors.New("auth: unauthorized")

// ValidityChecker reports whether a bearer token is structurally valid and
// unexpired. Implementations return (false, nil) for a token that is simply
// not valid and reserve errors for failures of the check itself (network,
// key retrieval). Callers that must fail closed treat an error as false.
type ValidityChecker interface {
	CheckTokenValidity(ctx context.Context, token string) (bool, error)
}

// ValidityCheckerFunc adapts a function to ValidityChecker.
type ValidityCheckerFunc func(ctx context.Context, token string) (bool, error)

func (f ValidityCheckerFunc) CheckTokenValidity(ctx context.Context, token string) (bool, error) {
	return f(ctx, token)
}

// ChainCheckers returns a checker that requires every checker to accept the
// token. Evaluation stops at the first rejection or error.
func ChainCheckers(checkers ...ValidityChecker) ValidityChecker {
	cs := make([]ValidityChecker, 0, len(checkers))
	for _, c := range checkers {
		if c != nil {
			cs = append(cs, c)
		}
	}
	return ValidityCheckerFunc(func(ctx context.Context, token string) (bool, error) {
		for _, c := range cs {
			ok, err := c.CheckTokenValidity(ctx, token)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	})
}
