// Package session stores the user's mailbox sessions in browser cookies.
//
// Three cookies make up a session: the bearer token, the active account
// (id and email as JSON), and the saved account list used by the account
// switcher. All cookie knowledge, including names, encoding, the 24h
// lifetime, and the Strict SameSite policy, is owned by the Repository
// implementation in this package.
//
// Passwords are never stored client-side. Saved accounts hold only id
// and email; switching to a saved account without a live token requires
// a fresh login.
package session
