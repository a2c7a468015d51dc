// Package web embeds the control-stock page templates and browser assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static templates
var content embed.FS

// StaticFS returns the browser assets served under /static/.
func StaticFS() fs.FS { return sub("static") }

// TemplatesFS returns the page templates.
func TemplatesFS() fs.FS { return sub("templates") }

// sub only fails for an invalid path, which the embed directive rules out.
func sub(dir string) fs.FS {
	f, err := fs.Sub(content, dir)
	if err != nil {
		panic("web: " + err.Error())
	}
	return f
}
