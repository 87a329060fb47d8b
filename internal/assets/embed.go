// Package assets serves the console's static files embedded via go:embed.
// Every file is published under a content-hashed name so it can be cached
// forever; URL maps a logical name to its hashed URL.
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
)

//go:embed static
var staticFS embed.FS

// Prefix is where FileServer is mounted.
const Prefix = "/static/"

// Manifest maps logical file names (e.g. "console.css") to their hashed
// names (e.g. "console.1a2b3c4d5e.css"). Built once at init.
// NOTE: Exported and mutable for testability. Tests that modify it must
// not use t.Parallel().
var Manifest map[string]string

// reverse maps hashed names back to the embedded file.
var reverse map[string]string

// hashPattern detects content hashes in filenames (e.g. ".1a2b3c4d5e.").
var hashPattern = regexp.MustCompile(`\.[a-zA-Z0-9_-]{8,}\.`)

func init() {
	// Register MIME types that may not be in the default database.
	_ = mime.AddExtensionType(".woff2", "font/woff2")
	_ = mime.AddExtensionType(".map", "application/json")

	m, err := buildManifest(staticFS, "static")
	if err != nil {
		slog.Error("failed to fingerprint static assets", "error", err)
		return
	}
	setManifest(m)
}

func setManifest(m map[string]string) {
	Manifest = m
	reverse = make(map[string]string, len(m))
	for name, hashed := range m {
		reverse[hashed] = name
	}
}

// buildManifest hashes every file under root.
func buildManifest(fsys fs.FS, root string) (map[string]string, error) {
	m := make(map[string]string)
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(p, root+"/")
		m[name] = hashedName(name, data)
		return nil
	})
	return m, err
}

// hashedName inserts the first ten hex digits of the content hash before
// the extension: "js/console.js" -> "js/console.0123456789.js".
func hashedName(name string, data []byte) string {
	sum := sha256.Sum256(data)
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + "." + hex.EncodeToString(sum[:])[:10] + ext
}

// URL returns the public URL for a logical asset name. Unknown names are
// served unhashed.
func URL(name string) string {
	if hashed, ok := Manifest[name]; ok {
		return Prefix + hashed
	}
	return Prefix + name
}

// containsHash reports whether the given path contains a content hash
// (8+ characters between dots, e.g. "console.a1b2c3d4e5.js").
func containsHash(p string) bool {
	return hashPattern.MatchString(p)
}

// mimeFromExt returns the MIME type for a file extension.
// Falls back to the Go standard library's MIME type database,
// then to "application/octet-stream" if unknown.
func mimeFromExt(ext string) string {
	switch ext {
	case ".js", ".mjs":
		return "application/javascript"
	case ".css":
		return "text/css; charset=utf-8"
	case ".woff2":
		return "font/woff2"
	case ".svg":
		return "image/svg+xml"
	case ".map":
		return "application/json"
	default:
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct
		}
		return "application/octet-stream"
	}
}

// FileServer returns an http.Handler that serves the embedded static files.
// Hashed names get immutable cache headers; plain names get no-cache.
// The handler expects paths relative to the static root (strip Prefix
// before calling).
func FileServer() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("assets: failed to create sub filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if strings.HasSuffix(name, "/") || name == "" {
			http.NotFound(w, r)
			return
		}

		ext := strings.ToLower(path.Ext(name))
		if ext != "" {
			w.Header().Set("Content-Type", mimeFromExt(ext))
		}

		if real, ok := reverse[name]; ok {
			w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
			r2 := r.Clone(r.Context())
			r2.URL.Path = "/" + real
			fileServer.ServeHTTP(w, r2)
			return
		}
		if containsHash(name) {
			// A stale fingerprint from a previous build.
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}
