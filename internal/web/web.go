// Package web embeds the browser demo page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html static
var assets embed.FS

// Index serves index.html.
func Index(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, assets, "index.html")
}

// Static serves files under static/ with the prefix stripped.
func Static() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
