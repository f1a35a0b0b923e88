// Package githubauth bridges "Sign in with GitHub" onto provider
// mailbox accounts.
//
// Each GitHub user maps to a deterministic mailbox: username gh_<id>
// with the primary GitHub email as password (the username doubles as
// the password when no email is visible). The callback logs in, creates
// the mailbox on first use, and retries the login once. Provisioning
// failures never surface to the user; the callback always redirects to
// the dashboard and the route guard handles missing sessions.
package githubauth
