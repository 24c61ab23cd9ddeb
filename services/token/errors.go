package token

import (
	"errors"
	"fmt"

	"github.com/tech-arch1tect/authkit/services/jwt"
)

// ErrInvalidToken is the sentinel matched by errors.Is for every refresh
// validation failure; the diagnostic code travels in InvalidTokenError.
var ErrInvalidToken = errors.New("invalid token")

type InvalidTokenError struct {
	Code   jwt.Code
	Reason string
}

func (e *InvalidTokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid token (%s): %s", e.Code, e.Reason)
	}
	return fmt.Sprintf("invalid token (%s)", e.Code)
}

func (e *InvalidTokenError) Is(target error) bool {
	return target == ErrInvalidToken
}

func invalidToken(code jwt.Code, reason string) error {
	return &InvalidTokenError{Code: code, Reason: reason}
}
