package http

import (
	"net/http"
	"path"
	"strings"
)

// HandleFileServer returns a handler that serves static files from dir
func HandleFileServer(dir string) http.HandlerFunc {
	fs := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		// Remove any query parameters
		cleaned := r.URL.Path
		if idx := strings.Index(cleaned, "?"); idx != -1 {
			cleaned = cleaned[:idx]
		}
		r.URL.Path = cleaned

		// Set appropriate headers for static files
		switch path.Ext(cleaned) {
		case ".js":
			w.Header().Set("Content-Type", "application/javascript")
		case ".css":
			w.Header().Set("Content-Type", "text/css")
		case ".html":
			w.Header().Set("Content-Type", "text/html")
		}

		fs.ServeHTTP(w, r)
	}
}
