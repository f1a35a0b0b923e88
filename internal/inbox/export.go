package inbox

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/teemow/vapormail/internal/mailtm"
	"github.com/teemow/vapormail/internal/session"
)

// Export formats.
const (
	FormatJSON     = "json"
	FormatHTML     = "html"
	FormatMarkdown = "markdown"
)

// ExportResult is a rendered download: content, MIME type, and the
// filename the browser should save it as.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

var htmlExportTmpl = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Inbox export</title></head>
<body>
<h1>Inbox export</h1>
<p>Exported {{.Timestamp}} &middot; {{len .Messages}} message(s)</p>
<table border="1" cellpadding="6" cellspacing="0">
<tr><th>Date</th><th>From</th><th>Subject</th><th>Preview</th></tr>
{{range .Messages}}<tr><td>{{.Date}}</td><td>{{.From}}</td><td>{{.Subject}}</td><td>{{.Intro}}</td></tr>
{{end}}</table>
</body>
</html>
`))

type exportRow struct {
	Date    string
	From    string
	Subject string
	Intro   string
}

// Export renders the message list in the requested format.
// Supported formats are json, html, and markdown.
func Export(msgs []mailtm.Message, format string, now time.Time) (*ExportResult, error) {
	ts := now.UTC().Format(time.RFC3339)

	switch format {
	case FormatJSON:
		type jsonMessage struct {
			ID        string    `json:"id"`
			From      string    `json:"from"`
			Subject   string    `json:"subject"`
			Intro     string    `json:"intro"`
			Seen      bool      `json:"seen"`
			CreatedAt time.Time `json:"createdAt"`
		}
		out := make([]jsonMessage, 0, len(msgs))
		for _, m := range msgs {
			out = append(out, jsonMessage{
				ID:        m.ID,
				From:      FormatSender(m),
				Subject:   m.Subject,
				Intro:     m.Intro,
				Seen:      m.Seen,
				CreatedAt: m.CreatedAt,
			})
		}
		content, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode export: %w", err)
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/json",
			Filename:    "inbox_" + ts + ".json",
		}, nil

	case FormatHTML:
		rows := make([]exportRow, 0, len(msgs))
		for _, m := range msgs {
			rows = append(rows, exportRow{
				Date:    m.CreatedAt.Format(time.RFC822),
				From:    FormatSender(m),
				Subject: m.Subject,
				Intro:   m.Intro,
			})
		}
		var buf bytes.Buffer
		if err := htmlExportTmpl.Execute(&buf, map[string]any{
			"Timestamp": ts,
			"Messages":  rows,
		}); err != nil {
			return nil, fmt.Errorf("render export: %w", err)
		}
		return &ExportResult{
			Content:     buf.Bytes(),
			ContentType: "text/html; charset=utf-8",
			Filename:    "inbox_" + ts + ".html",
		}, nil

	case FormatMarkdown:
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "# Inbox export\n\nExported %s, %d message(s)\n\n", ts, len(msgs))
		buf.WriteString("| Date | From | Subject | Preview |\n")
		buf.WriteString("| --- | --- | --- | --- |\n")
		for _, m := range msgs {
			fmt.Fprintf(&buf, "| %s | %s | %s | %s |\n",
				m.CreatedAt.Format(time.RFC822),
				escapePipes(FormatSender(m)),
				escapePipes(m.Subject),
				escapePipes(m.Intro))
		}
		return &ExportResult{
			Content:     buf.Bytes(),
			ContentType: "text/markdown; charset=utf-8",
			Filename:    "inbox_" + ts + ".md",
		}, nil

	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

// ExportAccounts renders the saved account list as a JSON download.
// Only id and email are exported; tokens and credentials never leave
// the cookie jar.
func ExportAccounts(accts []session.Account, now time.Time) *ExportResult {
	if accts == nil {
		accts = []session.Account{}
	}
	content, _ := json.MarshalIndent(accts, "", "  ")
	ts := now.UTC().Format(time.RFC3339)
	return &ExportResult{
		Content:     content,
		ContentType: "application/json",
		Filename:    "mail-tm-accounts_" + ts + ".json",
	}
}

// ImportAccounts parses a previously exported account list. Entries
// without an email are rejected. Imported accounts carry no token and
// need a fresh login before use.
func ImportAccounts(data []byte) ([]session.Account, error) {
	var accts []session.Account
	if err := json.Unmarshal(data, &accts); err != nil {
		return nil, fmt.Errorf("parse account export: %w", err)
	}
	for i, a := range accts {
		if a.Email == "" {
			return nil, fmt.Errorf("parse account export: entry %d has no email", i)
		}
	}
	return accts, nil
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
