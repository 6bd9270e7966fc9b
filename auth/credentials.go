package auth

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials is the username/password pair exchanged for a token.
type Credentials struct {
	Username string `json:"username" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Validate checks the credentials before they are sent anywhere.
func (c Credentials) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("auth: invalid credentials: %w", err)
	}
	return nil
}

// String never includes the password.
func (c Credentials) String() string { return "Credentials{Username:" + c.Username + "}" }
