package mailtm

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions callers are expected to branch on.
var (
	// ErrDuplicateUsername indicates an account registration for an
	// address that already exists on the provider.
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrInvalidCredentials indicates a login with a wrong address or
	// password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrParse indicates a response body that could not be decoded.
	ErrParse = errors.New("unparseable provider response")
)

// ProviderError is a non-2xx response from the provider with the error
// detail parsed out of the body.
type ProviderError struct {
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Detail)
}

// FetchError is a transport-level failure: the request never produced a
// provider response.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
