// Package mimetype guesses a Content-Type from a file name.
package mimetype

import (
	"mime"
	"path"
	"strings"

	"github.com/brettbedarf/mimic/internal/util"
)

// Fallback is returned when no type can be guessed
const Fallback = "application/octet-stream"

// overrides supplements mime.TypeByExtension for source files the editor
// cares about, keyed by lowercase extension without the dot
var overrides = map[string]string{
	"css":  "text/css",
	"dart": "text/javascript",
	"go":   "text/x-go",
	"html": "text/html",
	"ico":  "image/x-icon",
	"java": "text/x-java",
	"js":   "text/javascript",
	"jsp":  "application/x-jsp",
	"json": "application/json",
	"php":  "application/x-httpd-php",
	"sh":   "text/x-sh",
	"sql":  "text/x-mysql",
	"xml":  "application/xml",
	"yaml": "text/x-yaml",
}

// Extension returns the lowercase text after the last "." in filename, or the
// whole lowercased name if it has none.
func Extension(filename string) string {
	name := strings.ToLower(path.Base(filename))
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// Guess returns the MIME type for filename. Text types always carry a
// charset, defaulting to utf-8.
func Guess(filename string) string {
	ext := Extension(filename)
	typ, ok := overrides[ext]
	if !ok {
		typ = mime.TypeByExtension("." + ext)
	}
	if typ == "" {
		logger := util.GetLogger("mimetype")
		logger.Warn().Str("filename", filename).Str("extension", ext).Msg("Failed to guess MIME type")
		typ = Fallback
	}
	if strings.HasPrefix(typ, "text/") && !strings.Contains(typ, "charset=") {
		typ += "; charset=utf-8"
	}
	return typ
}
