package wsserver

import (
	"net/http"
	"path/filepath"
	"strings"
)

// mimeTypes is the short extension table from the external-interfaces
// contract; anything else falls back to net/http's content-type sniffing.
var mimeTypes = map[string]string{
	".html":  "text/html; charset=utf-8",
	".js":    "application/javascript",
	".css":   "text/css; charset=utf-8",
	".json":  "application/json",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
}

// StaticHandler returns a GET-only static file handler rooted at dir: `..`
// anywhere in the request path is rejected with 403, non-GET is rejected
// with 405, a missing file is 404, anything else 500. No directory
// listings.
func StaticHandler(dir string) http.Handler {
	fs := http.Dir(dir)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if strings.Contains(r.URL.Path, "..") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		name := r.URL.Path
		if name == "/" || name == "" {
			name = "/index.html"
		}

		f, err := fs.Open(name)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if info.IsDir() {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		if ct, ok := mimeTypes[strings.ToLower(filepath.Ext(name))]; ok {
			w.Header().Set("Content-Type", ct)
		}
		http.ServeContent(w, r, name, info.ModTime(), f)
	})
}
