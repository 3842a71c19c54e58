package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/mimetype"
	"github.com/brettbedarf/mimic/seed"
)

// maxImportSize caps manifest uploads to the control app
const maxImportSize = 32 << 20

// FileInfo is one entry of the control app's index listing
type FileInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

type controlFunc func(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error

func (s *Server) controlMux() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, fn controlFunc) {
		mux.Handle(pattern, s.withTree(fn))
	}
	p := mimic.ControlPrefix
	route("GET "+p+"/file", s.getFile)
	route("PUT "+p+"/file", s.putFile)
	route("GET "+p+"/dir", s.listDir)
	route("GET "+p+"/index", s.index)
	route("POST "+p+"/delete", s.deletePath)
	route("POST "+p+"/move", s.moveFile)
	route("POST "+p+"/clear", s.clear)
	route("GET "+p+"/export", s.export)
	route("POST "+p+"/import", s.importFiles)
	return mux
}

// withTree opens the project tree for a control request and maps errors
// returned by fn to status codes.
func (s *Server) withTree(fn controlFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		projectID := ""
		if s.opts.ProjectIDQueryParam != "" {
			projectID = r.URL.Query().Get(s.opts.ProjectIDQueryParam)
		}
		tree, _, err := s.openTree(s.namespaceFor(projectID), accessKeyOf(r))
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to open tree for control request")
			http.Error(w, "failed to open project tree", http.StatusInternalServerError)
			return
		}

		err = fn(w, r, tree)
		switch {
		case err == nil:
		case errors.Is(err, mimic.ErrUnsupported):
			http.Error(w, err.Error(), http.StatusForbidden)
		case errors.Is(err, mimic.ErrNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, errBadRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Control request failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}

var errBadRequest = errors.New("bad request")

func requireParam(r *http.Request, name string) (string, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return "", badRequest("missing " + name + " parameter")
	}
	return v, nil
}

type badRequestError string

func (e badRequestError) Error() string        { return string(e) }
func (e badRequestError) Is(target error) bool { return target == errBadRequest }

func badRequest(msg string) error {
	return badRequestError(msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) error {
	w.Header().Set("Content-Type", "application/json")
	return s.env.JSONEncoder(w).Encode(v)
}

func (s *Server) getFile(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	path, err := requireParam(r, "path")
	if err != nil {
		return err
	}
	contents, ok := tree.GetFileContents(path)
	if !ok {
		http.NotFound(w, r)
		return nil
	}
	w.Header().Set("Content-Type", mimetype.Guess(path))
	w.Header().Set("Content-Length", strconv.Itoa(len(contents)))
	if mod, ok := tree.GetFileLastModified(path); ok && !mod.IsZero() {
		w.Header().Set("Last-Modified", mod.UTC().Format(http.TimeFormat))
	}
	_, err = w.Write(contents)
	return err
}

func (s *Server) putFile(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	path, err := requireParam(r, "path")
	if err != nil {
		return err
	}
	contents, err := io.ReadAll(r.Body)
	if err != nil {
		return badRequest("failed to read body: " + err.Error())
	}
	if err := mimic.SetFile(tree, path, contents); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) listDir(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	names, err := tree.ListDirectory(r.URL.Query().Get("path"))
	if err != nil {
		return err
	}
	return s.writeJSON(w, names)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	files := tree.Files(r.URL.Query().Get("prefix"))
	infos := make([]FileInfo, 0, len(files))
	for _, f := range files {
		infos = append(infos, FileInfo{Path: f.Path, Size: f.Size(), LastModified: f.LastModified})
	}
	return s.writeJSON(w, infos)
}

func (s *Server) deletePath(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	path := r.URL.Query().Get("path")
	deleted, err := mimic.DeletePath(tree, path)
	if err != nil {
		return err
	}
	return s.writeJSON(w, map[string]bool{"deleted": deleted})
}

func (s *Server) moveFile(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	path, err := requireParam(r, "path")
	if err != nil {
		return err
	}
	newpath, err := requireParam(r, "newpath")
	if err != nil {
		return err
	}
	moved, err := mimic.MoveFile(tree, path, newpath)
	if err != nil {
		return err
	}
	return s.writeJSON(w, map[string]bool{"moved": moved})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	if err := mimic.Clear(tree); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func formatParam(r *http.Request) (seed.Format, error) {
	switch f := seed.Format(r.URL.Query().Get("format")); f {
	case "":
		return seed.FormatJSON, nil
	case seed.FormatJSON, seed.FormatYAML:
		return f, nil
	default:
		return "", badRequest("unknown format " + string(f))
	}
}

func (s *Server) export(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	format, err := formatParam(r)
	if err != nil {
		return err
	}
	if format == seed.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	return seed.Export(tree, r.URL.Query().Get("prefix"), w, format)
}

func (s *Server) importFiles(w http.ResponseWriter, r *http.Request, tree mimic.Tree) error {
	format, err := formatParam(r)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		return badRequest("failed to read body: " + err.Error())
	}
	records, err := seed.Parse(data, format, "")
	if err != nil {
		return badRequest(err.Error())
	}
	if err := mimic.PutFiles(tree, records); err != nil {
		return err
	}
	return s.writeJSON(w, map[string]int{"imported": len(records)})
}
