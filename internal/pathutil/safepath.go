// Package pathutil holds URL path checks shared by file-serving handlers.
package pathutil

import (
	"io/fs"
	"path"
	"strings"
)

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// FSName maps a URL path below a mount point to an fs.FS name. It rejects
// NUL, backslashes, dot segments, directory paths and anything fs.ValidPath
// refuses.
func FSName(urlPath string) (string, bool) {
	if strings.ContainsAny(urlPath, "\x00\\") || HasDotSegments(urlPath) {
		return "", false
	}
	if urlPath == "" || strings.HasSuffix(urlPath, "/") {
		return "", false
	}
	name := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if name == "" || !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}
