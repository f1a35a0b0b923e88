// Package inbox implements message-list operations that happen on this
// side of the provider: search filtering, sender formatting, and export
// rendering for inbox and account downloads.
package inbox
