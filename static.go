package relay

import (
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
)

// ResourceHandler serves GET and HEAD requests that match no endpoint. It
// reports whether it produced a response.
type ResourceHandler interface {
	Handle(c *Context) (bool, error)
}

// StaticFiles serves files from fsys for request paths under urlPrefix.
// Directories are served through their index.html.
func StaticFiles(fsys fs.FS, urlPrefix string) ResourceHandler {
	return &staticFiles{fsys: fsys, prefix: "/" + strings.Trim(urlPrefix, "/")}
}

type staticFiles struct {
	fsys   fs.FS
	prefix string
}

func (s *staticFiles) Handle(c *Context) (bool, error) {
	rel, ok := s.relative(c.Path())
	if !ok {
		return false, nil
	}

	name := rel
	info, err := fs.Stat(s.fsys, name)
	if err != nil {
		return false, nil
	}
	if info.IsDir() {
		name = path.Join(name, "index.html")
		if info, err = fs.Stat(s.fsys, name); err != nil || info.IsDir() {
			return false, nil
		}
	}

	f, err := s.fsys.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		c.ContentType(ct)
	}
	if mod := info.ModTime(); !mod.IsZero() {
		c.SetHeader("Last-Modified", mod.UTC().Format(http.TimeFormat))
	}
	c.Result(f)
	return true, nil
}

// relative maps a request path to a cleaned fs.FS name.
func (s *staticFiles) relative(p string) (string, bool) {
	if s.prefix != "/" {
		if p != s.prefix && !strings.HasPrefix(p, s.prefix+"/") {
			return "", false
		}
		p = strings.TrimPrefix(p, s.prefix)
	}
	name := strings.TrimPrefix(path.Clean("/"+p), "/")
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		return "", false
	}
	return name, true
}
