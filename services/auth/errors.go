package auth

import "errors"

var (
	// ErrUserAlreadyExists rejects registration with a taken email.
	ErrUserAlreadyExists = errors.New("an account with this email already exists")

	// ErrDefaultRoleNotFound signals a server misconfiguration: the role new
	// accounts are born with is missing. Alert-worthy, not client-fixable.
	ErrDefaultRoleNotFound = errors.New("default role not found")

	// ErrAuthenticationFailed is deliberately identical for an unknown email
	// and a wrong password so login probing cannot confirm account existence.
	ErrAuthenticationFailed = errors.New("invalid email or password")

	ErrVerificationTokenInvalid = errors.New("invalid email verification token")
	ErrVerificationTokenExpired = errors.New("email verification token has expired")
	ErrVerificationTokenUsed    = errors.New("email verification token has already been used")
	ErrEmailAlreadyVerified     = errors.New("email is already verified")
)
