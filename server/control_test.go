package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/internal/mocks"
	"github.com/brettbedarf/mimic/keyspace"
)

func newControlServer(t *testing.T, env *testEnv) *Server {
	t.Helper()
	h := &mocks.MockHandler{}
	t.Cleanup(func() { h.AssertNotCalled(t, "ServeCGI", mock.Anything, mock.Anything) })
	opts := defaultOptions()
	opts.CacheFiles = true
	return New(env, h, keyspace.NewMemStore(), opts)
}

func control(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, mimic.ControlPrefix+target, nil)
	} else {
		r = httptest.NewRequest(method, mimic.ControlPrefix+target, strings.NewReader(body))
	}
	return r
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestControl_FileRoundTrip(t *testing.T) {
	t.Parallel()

	s := newControlServer(t, newTestEnv())

	w := serve(s, control(http.MethodPut, "/file?path=/css/site.css", "body{}"))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = serve(s, control(http.MethodGet, "/file?path=css/site.css", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "body{}", w.Body.String())
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))

	// overwrite is visible through the cache
	serve(s, control(http.MethodPut, "/file?path=css/site.css", "p{}"))
	w = serve(s, control(http.MethodGet, "/file?path=css/site.css", ""))
	assert.Equal(t, "p{}", w.Body.String())

	w = serve(s, control(http.MethodGet, "/file?path=nope.css", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestControl_MissingParam(t *testing.T) {
	t.Parallel()

	s := newControlServer(t, newTestEnv())

	tests := []struct {
		method string
		target string
	}{
		{http.MethodGet, "/file"},
		{http.MethodPut, "/file"},
		{http.MethodPost, "/move?path=a"},
		{http.MethodGet, "/export?format=xml"},
	}
	for _, tt := range tests {
		w := serve(s, control(tt.method, tt.target, ""))
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.target)
	}
}

func TestControl_DirectoryAndIndex(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	mod := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	env.seed(testNamespace,
		mimic.FileRecord{Path: "a.txt", Contents: []byte("aa"), LastModified: mod},
		mimic.FileRecord{Path: "sub/b.txt", Contents: []byte("bbb"), LastModified: mod},
	)
	s := newControlServer(t, env)

	w := serve(s, control(http.MethodGet, "/dir", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a.txt", "sub/"}, decode[[]string](t, w))

	w = serve(s, control(http.MethodGet, "/dir?path=missing", ""))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, control(http.MethodGet, "/index?prefix=sub", ""))
	require.Equal(t, http.StatusOK, w.Code)
	infos := decode[[]FileInfo](t, w)
	require.Len(t, infos, 1)
	assert.Equal(t, "sub/b.txt", infos[0].Path)
	assert.Equal(t, int64(3), infos[0].Size)
	assert.True(t, mod.Equal(infos[0].LastModified))
}

func TestControl_MoveDeleteClear(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seed(testNamespace,
		mimic.FileRecord{Path: "a.txt", Contents: []byte("a")},
		mimic.FileRecord{Path: "dir/b.txt", Contents: []byte("b")},
	)
	s := newControlServer(t, env)

	w := serve(s, control(http.MethodPost, "/move?path=a.txt&newpath=moved/a.txt", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]bool{"moved": true}, decode[map[string]bool](t, w))

	w = serve(s, control(http.MethodPost, "/move?path=a.txt&newpath=x.txt", ""))
	assert.Equal(t, map[string]bool{"moved": false}, decode[map[string]bool](t, w))

	w = serve(s, control(http.MethodPost, "/delete?path=dir", ""))
	assert.Equal(t, map[string]bool{"deleted": true}, decode[map[string]bool](t, w))
	assert.False(t, env.tree(testNamespace).HasFile("dir/b.txt"))

	w = serve(s, control(http.MethodPost, "/clear", ""))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, env.tree(testNamespace).Files(""))
}

func TestControl_ReadOnlyTree(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.readOnly = true
	s := newControlServer(t, env)

	for _, r := range []*http.Request{
		control(http.MethodPut, "/file?path=a.txt", "x"),
		control(http.MethodPost, "/delete?path=a.txt", ""),
		control(http.MethodPost, "/move?path=a.txt&newpath=b.txt", ""),
		control(http.MethodPost, "/clear", ""),
		control(http.MethodPost, "/import", `{"files":[{"path":"a.txt"}]}`),
	} {
		w := serve(s, r)
		assert.Equal(t, http.StatusForbidden, w.Code, r.URL.String())
	}
}

func TestControl_ExportImport(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.seed("alpha",
		mimic.FileRecord{Path: "x/one.txt", Contents: []byte("1"), LastModified: time.Unix(1000, 0)},
		mimic.FileRecord{Path: "x/bin", Contents: []byte{0xff, 0xfe}},
	)
	s := newControlServer(t, env)

	w := serve(s, control(http.MethodGet, "/export?format=yaml&_mimic_project=alpha", ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	exported := w.Body.String()
	assert.Contains(t, exported, "x/one.txt")

	w = serve(s, control(http.MethodPost, "/import?format=yaml&_mimic_project=beta", exported))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]int{"imported": 2}, decode[map[string]int](t, w))

	got, ok := env.tree("beta").GetFileContents("x/bin")
	require.True(t, ok)
	assert.Equal(t, []byte{0xff, 0xfe}, got)
}

func TestControl_ImportRejectsSources(t *testing.T) {
	t.Parallel()

	s := newControlServer(t, newTestEnv())

	w := serve(s, control(http.MethodPost, "/import", `{"files":[{"path":"p","source":"/etc/passwd"}]}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControl_RequiresAccessKey(t *testing.T) {
	t.Parallel()

	env := newTestEnv()
	env.key = "k"
	s := newControlServer(t, env)

	w := serve(s, control(http.MethodGet, "/dir", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(s, control(http.MethodGet, "/dir?_mimic_access_key=k", ""))
	assert.Equal(t, http.StatusOK, w.Code)
}
