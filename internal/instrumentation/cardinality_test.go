package instrumentation

import "testing"

func TestExtractUserDomain(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  string
	}{
		{name: "plain address", email: "jane@example.com", want: "example.com"},
		{name: "mail.tm address", email: "user@mail.tm", want: "mail.tm"},
		{name: "no at sign", email: "invalid", want: "unknown"},
		{name: "empty string", email: "", want: "unknown"},
		{name: "trailing at", email: "user@", want: "unknown"},
		{name: "multiple at signs", email: "a@b@c", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractUserDomain(tt.email); got != tt.want {
				t.Errorf("ExtractUserDomain(%q) = %q, want %q", tt.email, got, tt.want)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{name: "message detail", path: "/api/messages/68b1f2", want: "/api/messages/{id}"},
		{name: "account by email", path: "/api/accounts/a@mail.tm", want: "/api/accounts/{email}"},
		{name: "accounts export stays", path: "/api/accounts/export", want: "/api/accounts/export"},
		{name: "accounts import stays", path: "/api/accounts/import", want: "/api/accounts/import"},
		{name: "accounts switch stays", path: "/api/accounts/switch", want: "/api/accounts/switch"},
		{name: "static assets collapse", path: "/static/app.js", want: "/static"},
		{name: "fixed route untouched", path: "/api/login", want: "/api/login"},
		{name: "message list untouched", path: "/api/messages", want: "/api/messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePath(tt.path); got != tt.want {
				t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
