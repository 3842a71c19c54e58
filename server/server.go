// Package server exposes hosted handlers over HTTP. Each request is turned
// into a CGI-style execution against the project's tree.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/cachetree"
	"github.com/brettbedarf/mimic/cgi"
	"github.com/brettbedarf/mimic/internal/metrics"
	"github.com/brettbedarf/mimic/internal/util"
	"github.com/brettbedarf/mimic/keyspace"
)

const (
	// AccessKeyHeader carries the access key for the project's tree
	AccessKeyHeader = "X-Mimic-Access-Key"
	// AccessKeyParam is the query parameter alternative to [AccessKeyHeader]
	AccessKeyParam = "_mimic_access_key"
	// RequestIDHeader is set on every response
	RequestIDHeader = "X-Mimic-Request-Id"
)

// Environment supplies the host's read-only settings, resolved once per
// request.
type Environment interface {
	// Namespace is the namespace for mimic's own data. Requests that name no
	// project use it as their tree namespace.
	Namespace() string
	ValidateAccessKey(key string) bool
	NewTree(namespace, accessKey string) (mimic.Tree, error)
	// AllowedHost reports whether host may serve user content
	AllowedHost(host string) bool
	JSONEncoder(w io.Writer) *json.Encoder
}

// Options holds request handling settings that are not part of the
// [Environment].
type Options struct {
	ProjectIDQueryParam string   // query parameter naming the project
	ProjectIDPathPrefix string   // PATH_INFO prefix followed by the project id
	CORSAllowedOrigins  []string // "*" allows any origin
	CORSAllowedHeaders  string
	CacheFiles          bool // wrap trees in a content cache
	StackTraces         bool // render stack traces in fault pages
}

// Server is an [http.Handler] running one hosted handler per request.
type Server struct {
	env      Environment
	executor *cgi.Executor
	store    keyspace.Store
	opts     Options
	control  http.Handler
	logger   util.Logger
}

var _ http.Handler = (*Server)(nil)

// New creates a server running handler. store backs every request's cache.
func New(env Environment, handler cgi.Handler, store keyspace.Store, opts Options) *Server {
	s := &Server{
		env:      env,
		executor: cgi.NewExecutor(handler, cgi.WithStackTraces(opts.StackTraces)),
		store:    store,
		opts:     opts,
		logger:   util.GetLogger("Server"),
	}
	s.control = s.controlMux()
	return s
}

// statusRecorder captures the status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		metrics.RecordHTTPRequest(r.Method, rec.status, time.Since(start))
	}()

	id := uuid.NewString()
	rec.Header().Set(RequestIDHeader, id)
	logger := s.logger.With().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).Logger()

	if !s.env.AllowedHost(r.Host) {
		logger.Warn().Str("host", r.Host).Msg("Host not allowed to serve user content")
		http.Error(rec, "host not allowed", http.StatusForbidden)
		return
	}
	if s.applyCORS(rec, r) {
		return
	}

	accessKey := accessKeyOf(r)
	if !s.env.ValidateAccessKey(accessKey) {
		logger.Info().Msg("Rejected access key")
		http.Error(rec, "invalid access key", http.StatusUnauthorized)
		return
	}

	if r.URL.Path == mimic.ControlPrefix || strings.HasPrefix(r.URL.Path, mimic.ControlPrefix+"/") {
		s.control.ServeHTTP(rec, r)
		return
	}

	projectID, pathInfo, scriptName := s.resolveProject(r)
	namespace := s.namespaceFor(projectID)
	tree, cache, err := s.openTree(namespace, accessKey)
	if err != nil {
		logger.Error().Err(err).Str("namespace", namespace).Msg("Failed to open tree")
		http.Error(rec, "failed to open project tree", http.StatusInternalServerError)
		return
	}

	req := &cgi.Request{
		ID:        id,
		Env:       s.cgiEnv(r, pathInfo, scriptName),
		AccessKey: accessKey,
		Tree:      tree,
		Cache:     cache,
	}
	resp := s.executor.Execute(r.Context(), req, r.Body)
	if err := resp.Write(rec); err != nil {
		logger.Debug().Err(err).Msg("Failed to write response")
	}
	logger.Info().Str("namespace", namespace).Str("status", resp.Status).Dur("elapsed", time.Since(start)).Msg("Request served")
}

func accessKeyOf(r *http.Request) string {
	if key := r.Header.Get(AccessKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(AccessKeyParam)
}

// resolveProject extracts the project id from the path prefix or the query
// parameter. When the path carries it, the prefix and id move from PATH_INFO
// to SCRIPT_NAME.
func (s *Server) resolveProject(r *http.Request) (projectID, pathInfo, scriptName string) {
	pathInfo = r.URL.Path
	if prefix := s.opts.ProjectIDPathPrefix; prefix != "" {
		if rest, ok := strings.CutPrefix(pathInfo, prefix); ok {
			id, tail, found := strings.Cut(rest, mimic.Separator)
			if id != "" && found {
				return id, mimic.Separator + tail, prefix + id
			}
		}
	}
	if param := s.opts.ProjectIDQueryParam; param != "" {
		projectID = r.URL.Query().Get(param)
	}
	return projectID, pathInfo, ""
}

func (s *Server) namespaceFor(projectID string) string {
	if projectID == "" {
		return s.env.Namespace()
	}
	return projectID
}

// openTree builds the request's tree and cache. Cache keys are scoped to
// the namespace; cached file contents live in the original keyspace.
func (s *Server) openTree(namespace, accessKey string) (mimic.Tree, *keyspace.Cache, error) {
	tree, err := s.env.NewTree(namespace, accessKey)
	if err != nil {
		return nil, nil, err
	}
	cache := keyspace.NewCache(s.store, namespace+":")
	if s.opts.CacheFiles {
		tree = cachetree.New(tree, cache, namespace)
	}
	return tree, cache, nil
}
