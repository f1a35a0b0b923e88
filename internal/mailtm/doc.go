// Package mailtm provides a client for the mail.tm REST API.
//
// The client covers the subset of the API the application needs: domain
// listing, account registration, token-based login, and mailbox access.
// List responses use the JSON-LD hydra envelope, which the client
// unwraps into plain slices.
//
// Errors are classified so callers can branch on them:
//
//   - ErrDuplicateUsername: registration for an existing address
//   - ErrInvalidCredentials: login rejected by the provider
//   - ProviderError: any other non-2xx provider response
//   - FetchError: the request never reached the provider
//   - ErrParse: the response body could not be decoded
//
// Logout is a purely local operation (the provider's tokens cannot be
// revoked), so the client has no logout method; sessions end by
// discarding the token.
package mailtm
