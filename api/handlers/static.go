package handlers

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// SPA serves files from dir, falling back to dir/index.html for any path
// that is not a file so client-side routes resolve.
func SPA(dir string) http.HandlerFunc {
	index := filepath.Join(dir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err == nil && info.Mode().IsRegular() {
			http.ServeFile(w, r, name)
			return
		}
		http.ServeFile(w, r, index)
	}
}
