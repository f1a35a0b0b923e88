package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with user identifiers
// or request paths.

// ExtractUserDomain extracts the domain part from an email address.
// This reduces cardinality by using the domain instead of the full email.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("user@mail.tm")      // "mail.tm"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// NormalizePath collapses per-resource URL segments so the path label
// on request metrics stays bounded.
//
// Example:
//
//	NormalizePath("/api/messages/68b1f2")       // "/api/messages/{id}"
//	NormalizePath("/api/accounts/a@mail.tm")    // "/api/accounts/{email}"
//	NormalizePath("/static/app.js")             // "/static"
//	NormalizePath("/api/login")                 // "/api/login"
func NormalizePath(path string) string {
	switch {
	case path == "/api/accounts/export",
		path == "/api/accounts/import",
		path == "/api/accounts/switch":
		return path
	case strings.HasPrefix(path, "/api/messages/"):
		return "/api/messages/{id}"
	case strings.HasPrefix(path, "/api/accounts/"):
		return "/api/accounts/{email}"
	case strings.HasPrefix(path, "/static/"):
		return "/static"
	default:
		return path
	}
}
