// Package httptree implements a read-only [mimic.Tree] backed by an HTTP
// origin. Files are fetched on demand; directory structure comes from an
// optional JSON manifest published next to the files.
package httptree

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/util"
)

// DefaultManifest is the file, relative to the tree's base URL, listing the
// tree's files
const DefaultManifest = "_mimic_manifest.json"

// DefaultTimeout bounds each request to the origin
const DefaultTimeout = 10 * time.Second

// HTTPClient is the subset of [http.Client] used by the tree
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ManifestEntry is one file listed in the manifest
type ManifestEntry struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size,omitempty"`
	LastModified time.Time `json:"lastModified,omitzero"`
}

// Tree reads files from <baseURL>/<namespace>/<path>.
type Tree struct {
	base      *url.URL
	namespace string
	accessKey string
	client    HTTPClient
	headers   map[string]string
	manifest  string
	timeout   time.Duration
	maxSize   int64
	logger    util.Logger

	mu    sync.RWMutex
	index []ManifestEntry // sorted by path; nil until loaded
}

var _ mimic.Tree = (*Tree)(nil)

// Option configures a [Tree]
type Option func(*Tree)

// WithClient replaces [http.DefaultClient]
func WithClient(c HTTPClient) Option {
	return func(t *Tree) { t.client = c }
}

// WithHeaders adds headers to every request sent to the origin
func WithHeaders(h map[string]string) Option {
	return func(t *Tree) { t.headers = h }
}

// WithManifest overrides [DefaultManifest]. An empty name disables the
// manifest so only the root directory exists.
func WithManifest(name string) Option {
	return func(t *Tree) { t.manifest = name }
}

// WithTimeout overrides [DefaultTimeout]
func WithTimeout(d time.Duration) Option {
	return func(t *Tree) { t.timeout = d }
}

// ValidateURL checks that raw is an absolute http(s) URL without user info.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	if u.User != nil {
		return nil, fmt.Errorf("url %q must not contain user info", raw)
	}
	return u, nil
}

// New creates a tree reading from baseURL. When an access key is given it is
// sent to the origin as a bearer token.
func New(baseURL, namespace, accessKey string, opts ...Option) (*Tree, error) {
	u, err := ValidateURL(baseURL)
	if err != nil {
		return nil, err
	}
	if strings.Contains(namespace, mimic.Separator) || namespace == "." || namespace == ".." {
		return nil, fmt.Errorf("invalid namespace %q", namespace)
	}
	t := &Tree{
		base:      u,
		namespace: namespace,
		accessKey: accessKey,
		client:    http.DefaultClient,
		manifest:  DefaultManifest,
		timeout:   DefaultTimeout,
		maxSize:   mimic.MaxFileSize,
		logger:    util.GetLogger("httptree").With().Str("namespace", namespace).Logger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Tree) IsMutable() bool {
	return false
}

// fileURL returns the origin URL for a tree path. Dot segments are refused
// so a path can never resolve outside the namespace.
func (t *Tree) fileURL(path string) (string, bool) {
	segs := []string{}
	if t.namespace != "" {
		segs = append(segs, t.namespace)
	}
	for _, seg := range mimic.SplitPath(path) {
		if seg == "." || seg == ".." {
			return "", false
		}
		segs = append(segs, seg)
	}
	return t.base.JoinPath(segs...).String(), true
}

// fetch sends a request for path and returns the response if the origin
// answered 2xx. The caller must close the body.
func (t *Tree) fetch(ctx context.Context, method, path string) (*http.Response, bool) {
	u, ok := t.fileURL(path)
	if !ok {
		t.logger.Debug().Str("path", path).Msg("Refusing path with dot segments")
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		t.logger.Error().Err(err).Str("path", path).Msg("Failed to build request")
		return nil, false
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.accessKey)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Origin request failed")
		return nil, false
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close() // nolint:errcheck
		if resp.StatusCode != http.StatusNotFound {
			t.logger.Warn().Int("status", resp.StatusCode).Str("method", method).Str("path", path).
				Msg("Unexpected origin response")
		}
		return nil, false
	}
	return resp, true
}

func (t *Tree) head(path string) (*http.Response, bool) {
	if mimic.IsRoot(path) {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	resp, ok := t.fetch(ctx, http.MethodHead, path)
	if !ok {
		return nil, false
	}
	resp.Body.Close() // nolint:errcheck
	return resp, true
}

func (t *Tree) get(path string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	resp, ok := t.fetch(ctx, http.MethodGet, path)
	if !ok {
		return nil, false
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxSize+1))
	if err != nil {
		t.logger.Warn().Err(err).Str("path", path).Msg("Failed to read origin response")
		return nil, false
	}
	if int64(len(data)) > t.maxSize {
		t.logger.Warn().Str("path", path).Int64("limit", t.maxSize).Msg("Origin file too large")
		return nil, false
	}
	return data, true
}

func (t *Tree) HasFile(path string) bool {
	_, ok := t.head(path)
	return ok
}

func (t *Tree) GetFileContents(path string) ([]byte, bool) {
	if mimic.IsRoot(path) {
		return nil, false
	}
	return t.get(path)
}

func (t *Tree) GetFileSize(path string) (int64, bool) {
	resp, ok := t.head(path)
	if !ok {
		return 0, false
	}
	if resp.ContentLength >= 0 {
		return resp.ContentLength, true
	}
	data, ok := t.get(path)
	return int64(len(data)), ok
}

// GetFileLastModified returns the origin's Last-Modified header. A file
// served without one reports the zero time.
func (t *Tree) GetFileLastModified(path string) (time.Time, bool) {
	resp, ok := t.head(path)
	if !ok {
		return time.Time{}, false
	}
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, true
	}
	mod, err := http.ParseTime(lm)
	if err != nil {
		t.logger.Debug().Err(err).Str("path", path).Msg("Ignoring invalid Last-Modified")
		return time.Time{}, true
	}
	return mod.UTC(), true
}

// Index returns the manifest entries, fetching the manifest on first use.
func (t *Tree) Index() []ManifestEntry {
	t.mu.RLock()
	idx := t.index
	t.mu.RUnlock()
	if idx != nil {
		return idx
	}
	return t.Refresh()
}

// Refresh refetches the manifest. A missing or invalid manifest yields an
// empty index.
func (t *Tree) Refresh() []ManifestEntry {
	idx := []ManifestEntry{}
	if t.manifest != "" {
		if data, ok := t.get(t.manifest); ok {
			if err := json.Unmarshal(data, &idx); err != nil {
				t.logger.Warn().Err(err).Msg("Invalid manifest")
				idx = []ManifestEntry{}
			}
		}
	}
	for i := range idx {
		idx[i].Path = mimic.CleanPath(idx[i].Path)
	}
	slices.SortFunc(idx, func(a, b ManifestEntry) int { return strings.Compare(a.Path, b.Path) })

	t.mu.Lock()
	t.index = idx
	t.mu.Unlock()
	t.logger.Debug().Int("files", len(idx)).Msg("Manifest loaded")
	return idx
}

func (t *Tree) HasDirectory(path string) bool {
	if mimic.IsRoot(path) {
		return true
	}
	dir := mimic.NormalizeDirPath(mimic.CleanPath(path))
	for _, e := range t.Index() {
		if strings.HasPrefix(e.Path, dir) {
			return true
		}
	}
	return false
}

func (t *Tree) ListDirectory(path string) ([]string, error) {
	if !t.HasDirectory(path) {
		return nil, &mimic.NotFoundError{Path: path}
	}
	dir := mimic.NormalizeDirPath(mimic.CleanPath(path))
	seen := map[string]struct{}{}
	names := []string{}
	for _, e := range t.Index() {
		rest, ok := strings.CutPrefix(e.Path, dir)
		if !ok || rest == "" {
			continue
		}
		name := rest
		if i := strings.Index(rest, mimic.Separator); i >= 0 {
			name = rest[:i+1]
		}
		if _, dup := seen[name]; !dup {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Files fetches every manifest file whose path starts with prefix. Files the
// origin no longer serves are skipped.
func (t *Tree) Files(prefix string) []mimic.FileRecord {
	prefix = strings.TrimLeft(prefix, mimic.Separator)
	files := []mimic.FileRecord{}
	for _, e := range t.Index() {
		if !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		data, ok := t.get(e.Path)
		if !ok {
			continue
		}
		files = append(files, mimic.FileRecord{Path: e.Path, Contents: data, LastModified: e.LastModified})
	}
	return files
}
