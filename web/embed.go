// Package web holds the dashboard's templates and static assets.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html css/*.css js/*.js
var content embed.FS

// Templates is rooted at templates/, so pages are addressed by file name.
func Templates() fs.FS {
	return mustSub("templates")
}

// Static serves css/ and js/ under /static/.
func Static() fs.FS {
	return content
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(content, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
