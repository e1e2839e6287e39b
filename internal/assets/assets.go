// Package assets embeds the player web UI. The static/ directory holds the
// hand-written pages: a login form, the channel grid and an hls.js video
// element, compiled into the binary so the server needs no files on disk.
package assets

import (
	"embed"
	"io/fs"
	"mime"
	"path/filepath"
	"strings"
)

//go:embed all:static
var staticFS embed.FS

// GetStaticFS returns the embedded UI rooted at the directory the file
// server expects, so "index.html" resolves without a static/ prefix.
func GetStaticFS() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}

// HasStaticAssets reports whether this build embeds a UI. A tree with the
// static files stripped still compiles; the server then falls back to a
// plain placeholder page.
func HasStaticAssets() bool {
	entries, err := fs.ReadDir(staticFS, "static")
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.Name() != ".gitkeep" {
			return true
		}
	}
	return false
}

// GetContentType maps an asset path to its MIME type. The system table is
// consulted first; the switch covers extensions the table may lack on
// minimal containers.
func GetContentType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "application/octet-stream"
	}
	if byTable := mime.TypeByExtension(ext); byTable != "" {
		return byTable
	}

	switch ext {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json", ".map":
		return "application/json; charset=utf-8"
	case ".svg":
		return "image/svg+xml; charset=utf-8"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".ico":
		return "image/x-icon"
	case ".woff":
		return "font/woff"
	case ".woff2":
		return "font/woff2"
	case ".ttf":
		return "font/ttf"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// ListAssets returns every embedded asset path relative to the UI root.
func ListAssets() ([]string, error) {
	var paths []string
	err := fs.WalkDir(staticFS, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() != ".gitkeep" {
			paths = append(paths, strings.TrimPrefix(p, "static/"))
		}
		return nil
	})
	return paths, err
}
