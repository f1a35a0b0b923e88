package inbox

import (
	"strings"

	"github.com/teemow/vapormail/internal/mailtm"
)

// FormatSender renders a message sender as "Name <address>" when a
// display name is present, or the bare address otherwise.
func FormatSender(m mailtm.Message) string {
	if m.From.Name != "" {
		return m.From.Name + " <" + m.From.Address + ">"
	}
	return m.From.Address
}

// Filter returns the messages matching the query with a case-insensitive
// substring match over subject, intro, formatted sender, and recipient
// addresses. An empty query returns the input unchanged.
func Filter(msgs []mailtm.Message, query string) []mailtm.Message {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return msgs
	}

	matched := make([]mailtm.Message, 0, len(msgs))
	for _, m := range msgs {
		if matches(m, query) {
			matched = append(matched, m)
		}
	}
	return matched
}

func matches(m mailtm.Message, query string) bool {
	if strings.Contains(strings.ToLower(m.Subject), query) {
		return true
	}
	if strings.Contains(strings.ToLower(m.Intro), query) {
		return true
	}
	if strings.Contains(strings.ToLower(FormatSender(m)), query) {
		return true
	}
	for _, to := range m.To {
		if strings.Contains(strings.ToLower(to.Address), query) {
			return true
		}
	}
	return false
}
