package server

import (
	"bytes"
	"encoding/hex"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// DefaultStaticGlobs is used when Config.StaticGlobs is empty.
var DefaultStaticGlobs = []string{"**/*.html", "**/*.js", "**/*.css", "**/*.svg", "**/*.png", "**/*.ico"}

type asset struct {
	body        []byte
	etag        string
	contentType string
}

// staticAssets serves a fixed, preloaded set of files.
type staticAssets struct {
	files   map[string]asset
	modTime time.Time
}

func loadStatic(fsys fs.FS, globs []string) (*staticAssets, error) {
	if len(globs) == 0 {
		globs = DefaultStaticGlobs
	}
	a := &staticAssets{files: map[string]asset{}, modTime: time.Now()}
	for _, g := range globs {
		if !doublestar.ValidatePattern(g) {
			return nil, errors.Errorf("invalid static glob %q", g)
		}
		matches, err := doublestar.Glob(fsys, g, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "glob %q", g)
		}
		for _, name := range matches {
			if _, ok := a.files[name]; ok {
				continue
			}
			b, err := fs.ReadFile(fsys, name)
			if err != nil {
				return nil, errors.Wrapf(err, "read %s", name)
			}
			sum := blake3.Sum256(b)
			ct := mime.TypeByExtension(path.Ext(name))
			if ct == "" {
				ct = http.DetectContentType(b)
			}
			a.files[name] = asset{
				body:        b,
				etag:        `"` + hex.EncodeToString(sum[:16]) + `"`,
				contentType: ct,
			}
		}
	}
	return a, nil
}

// Names lists the served asset paths, sorted.
func (a *staticAssets) Names() []string {
	out := make([]string, 0, len(a.files))
	for n := range a.files {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (a *staticAssets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" || strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	f, ok := a.files[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("ETag", f.etag)
	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, name, a.modTime, bytes.NewReader(f.body))
}
