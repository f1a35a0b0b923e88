// Package server implements the vapormail web server: the HTML pages,
// the JSON API backing them, the GitHub OAuth login bridge, and the
// health and metrics endpoints.
//
// All mailbox state lives upstream at mail.tm or in the browser's
// cookies; the server itself is stateless and safe to restart at any
// time. A cookie-based route guard keeps unauthenticated requests away
// from the dashboard and signed-in users away from the auth pages.
//
// Prometheus metrics are served on a dedicated port so that operational
// data never shares a listener with user traffic.
package server
