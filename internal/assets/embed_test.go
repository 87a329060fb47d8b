package assets

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
)

func TestContainsHash(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"js/console.a1b2c3d4e5.js", true},
		{"console.CU4W1PlC.css", true},
		{"console.css", false},
		{"manifest.json", false},
		{".gitkeep", false},
	}
	for _, tt := range tests {
		if got := containsHash(tt.path); got != tt.want {
			t.Errorf("containsHash(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestMimeFromExt(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".js", "application/javascript"},
		{".mjs", "application/javascript"},
		{".css", "text/css; charset=utf-8"},
		{".woff2", "font/woff2"},
		{".svg", "image/svg+xml"},
		{".map", "application/json"},
		{".qqqqqq", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := mimeFromExt(tt.ext); got != tt.want {
			t.Errorf("mimeFromExt(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestHashedNameIsStable(t *testing.T) {
	a := hashedName("js/console.js", []byte("alert(1)"))
	b := hashedName("js/console.js", []byte("alert(1)"))
	c := hashedName("js/console.js", []byte("alert(2)"))

	if a != b {
		t.Errorf("same content hashed differently: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different content hashed the same: %q", a)
	}
	if !strings.HasPrefix(a, "js/console.") || !strings.HasSuffix(a, ".js") {
		t.Errorf("hashedName = %q, want js/console.<hash>.js", a)
	}
	if !containsHash(a) {
		t.Errorf("containsHash(%q) = false", a)
	}
}

func TestBuildManifest(t *testing.T) {
	fsys := fstest.MapFS{
		"static/console.css":   {Data: []byte("body{}")},
		"static/js/console.js": {Data: []byte("void 0")},
		"static/img/.gitkeep":  {Data: nil},
	}
	m, err := buildManifest(fsys, "static")
	if err != nil {
		t.Fatalf("buildManifest: %v", err)
	}
	if len(m) != 3 {
		t.Fatalf("manifest has %d entries, want 3: %v", len(m), m)
	}
	if !strings.HasPrefix(m["js/console.js"], "js/console.") {
		t.Errorf("js/console.js -> %q", m["js/console.js"])
	}
}

func TestURL(t *testing.T) {
	orig := Manifest
	defer setManifest(orig)

	setManifest(map[string]string{"console.css": "console.0123456789.css"})

	if got := URL("console.css"); got != "/static/console.0123456789.css" {
		t.Errorf("URL(console.css) = %q", got)
	}
	if got := URL("missing.js"); got != "/static/missing.js" {
		t.Errorf("URL(missing.js) = %q", got)
	}
}

func TestEmbeddedAssetsAreFingerprinted(t *testing.T) {
	for _, name := range []string{"console.css", "console.js"} {
		if _, ok := Manifest[name]; !ok {
			t.Errorf("Manifest missing %s", name)
		}
	}
}

func TestFileServer(t *testing.T) {
	h := FileServer()

	t.Run("hashed name is immutable", func(t *testing.T) {
		hashed := strings.TrimPrefix(URL("console.css"), Prefix)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+hashed, nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); !strings.Contains(got, "immutable") {
			t.Errorf("Cache-Control = %q, want immutable", got)
		}
		if got := rec.Header().Get("Content-Type"); got != "text/css; charset=utf-8" {
			t.Errorf("Content-Type = %q", got)
		}
	})

	t.Run("plain name is no-cache", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/console.js", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
			t.Errorf("Cache-Control = %q, want no-cache", got)
		}
	})

	t.Run("stale fingerprint is not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/console.ffffffffff.css", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("directory listing is refused", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}
