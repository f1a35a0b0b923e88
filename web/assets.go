// Package web embeds the browser UI: page templates and static assets.
package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed templates static
var assets embed.FS

// Templates parses all page templates from the embedded filesystem.
func Templates() (*template.Template, error) {
	return template.ParseFS(assets, "templates/*.html")
}

// Static returns the static asset tree rooted at its directory.
func Static() (fs.FS, error) {
	return fs.Sub(assets, "static")
}
