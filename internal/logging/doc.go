// Package logging provides structured logging utilities for the vapormail application.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - PII sanitization (email anonymization)
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "mailtm.login")
//	logger.Info("logged in",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("session saved",
//	    logging.Account(email))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - Account addresses are masked to prevent PII leakage while allowing correlation
//   - Tokens are never logged directly
package logging
