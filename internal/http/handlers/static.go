package handlers

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/jmylchreest/hlsgate/internal/assets"
)

// StaticHandler serves embedded static assets for the web UI.
type StaticHandler struct {
	fileServer http.Handler
	hasAssets  bool
}

// NewStaticHandler creates a new static asset handler.
// If no static assets are embedded, it will serve a "UI not available" message.
func NewStaticHandler() *StaticHandler {
	hasAssets := assets.HasStaticAssets()

	var fileServer http.Handler
	if hasAssets {
		staticFS, err := assets.GetStaticFS()
		if err == nil {
			fileServer = http.FileServer(http.FS(staticFS))
		}
	}

	return &StaticHandler{
		fileServer: fileServer,
		hasAssets:  hasAssets,
	}
}

// ServeHTTP handles HTTP requests for static assets. Unknown paths
// without a file extension fall back to index.html so the player page
// handles them.
func (h *StaticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// API routes that reached this handler were not matched by any
	// registered operation.
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.NotFound(w, r)
		return
	}

	if !h.hasAssets {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>hlsgate</title>
    <style>
        body { font-family: system-ui, sans-serif; max-width: 600px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        p { color: #666; line-height: 1.6; }
        code { background: #f4f4f4; padding: 2px 6px; border-radius: 4px; }
    </style>
</head>
<body>
    <h1>hlsgate</h1>
    <p>The web UI is not available in this build.</p>
    <p>Rebuild with the files under <code>internal/assets/static/</code> present to embed it.</p>
    <p>API documentation is available at <a href="/docs">/docs</a></p>
</body>
</html>`))
		return
	}

	urlPath := path.Clean(r.URL.Path)
	if urlPath == "" {
		urlPath = "/"
	}

	filePath := strings.TrimPrefix(urlPath, "/")
	if filePath == "" {
		filePath = "index.html"
	}

	staticFS, _ := assets.GetStaticFS()
	if _, err := fs.Stat(staticFS, filePath); err != nil {
		if !strings.Contains(path.Base(urlPath), ".") {
			r.URL.Path = "/index.html"
			h.setHeaders(w, "index.html")
			h.fileServer.ServeHTTP(w, r)
			return
		}

		http.NotFound(w, r)
		return
	}

	h.setHeaders(w, filePath)
	h.fileServer.ServeHTTP(w, r)
}

// setHeaders sets appropriate cache and content-type headers.
func (h *StaticHandler) setHeaders(w http.ResponseWriter, filePath string) {
	contentType := assets.GetContentType(filePath)
	w.Header().Set("Content-Type", contentType)

	if strings.HasSuffix(filePath, ".js") || strings.HasSuffix(filePath, ".css") {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	} else if strings.HasSuffix(filePath, ".html") {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=86400")
	}
}
