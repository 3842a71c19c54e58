// Package handlers provides ready-made hosted handlers.
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/cgi"
	"github.com/brettbedarf/mimic/mimetype"
)

// DefaultIndex is served for requests naming a directory
const DefaultIndex = "index.html"

type static struct {
	index string
}

// StaticOption configures [Static]
type StaticOption func(*static)

// WithIndex overrides [DefaultIndex]
func WithIndex(name string) StaticOption {
	return func(s *static) { s.index = name }
}

// Static serves files from the request's tree, addressed by PATH_INFO.
// Only GET and HEAD are allowed.
func Static(opts ...StaticOption) cgi.Handler {
	s := &static{index: DefaultIndex}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *static) ServeCGI(ctx context.Context, req *cgi.Request) error {
	method := req.Getenv("REQUEST_METHOD")
	if method != http.MethodGet && method != http.MethodHead {
		return writeStatus(req.Stdout, http.StatusMethodNotAllowed, "Allow: GET, HEAD")
	}
	if req.Tree == nil {
		return fmt.Errorf("no tree bound to request")
	}

	path := req.Getenv("PATH_INFO")
	if !req.Tree.HasFile(path) && req.Tree.HasDirectory(path) {
		path = mimic.NormalizeDirPath(mimic.CleanPath(path)) + s.index
	}
	contents, ok := req.Tree.GetFileContents(path)
	if !ok {
		return writeStatus(req.Stdout, http.StatusNotFound, "")
	}

	mod, hasMod := req.Tree.GetFileLastModified(path)
	hasMod = hasMod && !mod.IsZero()
	if hasMod && notModified(req.Getenv("HTTP_IF_MODIFIED_SINCE"), mod) {
		return writeStatus(req.Stdout, http.StatusNotModified, "")
	}

	var hdr strings.Builder
	fmt.Fprintf(&hdr, "Content-Type: %s\n", mimetype.Guess(path))
	fmt.Fprintf(&hdr, "Content-Length: %d\n", len(contents))
	if hasMod {
		fmt.Fprintf(&hdr, "Last-Modified: %s\n", mod.UTC().Format(http.TimeFormat))
	}
	hdr.WriteString("\n")
	if _, err := io.WriteString(req.Stdout, hdr.String()); err != nil {
		return err
	}
	if method == http.MethodHead {
		return nil
	}
	_, err := req.Stdout.Write(contents)
	return err
}

// notModified reports whether an If-Modified-Since value covers mod.
// HTTP dates have second precision.
func notModified(ims string, mod time.Time) bool {
	if ims == "" {
		return false
	}
	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}
	return !mod.Truncate(time.Second).After(t)
}

// writeStatus writes a header-only response with an optional extra header line
func writeStatus(w io.Writer, code int, extra string) error {
	out := fmt.Sprintf("Status: %d %s\n", code, http.StatusText(code))
	if extra != "" {
		out += extra + "\n"
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
