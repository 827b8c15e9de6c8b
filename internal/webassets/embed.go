// Package webassets embeds the site's templates and static files.
package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed templates static
var embedded embed.FS

func sub(dir string) fs.FS {
	s, err := fs.Sub(embedded, dir)
	if err != nil {
		panic(fmt.Errorf("webassets: %s subfs: %w", dir, err))
	}
	return s
}

// TemplatesFS holds html/template sources, index.html among them.
func TemplatesFS() fs.FS { return sub("templates") }

// StaticFS holds files served under /static/.
func StaticFS() fs.FS { return sub("static") }
