package httptree

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/mimic"
)

var testModTime = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

// newOrigin serves files under /proj/ plus a manifest listing them
func newOrigin(t *testing.T, files map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var manifestHits atomic.Int32
	entries := []ManifestEntry{}
	for p := range files {
		entries = append(entries, ManifestEntry{Path: p, LastModified: testModTime})
	}
	manifest, err := json.Marshal(entries)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/proj/"+DefaultManifest {
			manifestHits.Add(1)
			_, _ = w.Write(manifest)
			return
		}
		name, _ := strings.CutPrefix(r.URL.Path, "/proj/")
		body, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Last-Modified", testModTime.Format(http.TimeFormat))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &manifestHits
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url     string
		wantErr bool
		desc    string
	}{
		{"http://test.com", false, "basic HTTP URL"},
		{"https://test.com", false, "basic HTTPS URL"},
		{"  http://test.com   ", false, "URL with whitespace"},
		{"http://test.com:8080/base", false, "URL with port and path"},
		{"http://123.123.123.123/test", false, "IP address"},
		{"", true, "empty string"},
		{" ", true, "whitespace only"},
		{"ftp://test.com", true, "different scheme rejected"},
		{"test.com", true, "missing scheme"},
		{"http://user@test.com/path", true, "URL with user info"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTree_ReadFiles(t *testing.T) {
	t.Parallel()

	srv, _ := newOrigin(t, map[string]string{"index.html": "<h1>hi</h1>", "js/app.js": "alert(1)"})
	tree, err := New(srv.URL, "proj", "")
	require.NoError(t, err)

	assert.False(t, tree.IsMutable())
	_, isMutable := any(tree).(mimic.MutableTree)
	assert.False(t, isMutable, "http trees never implement the mutating contract")

	assert.True(t, tree.HasFile("index.html"))
	assert.True(t, tree.HasFile("/js/app.js"))
	assert.False(t, tree.HasFile("missing.txt"))
	assert.False(t, tree.HasFile("/"))

	contents, ok := tree.GetFileContents("js/app.js")
	require.True(t, ok)
	assert.Equal(t, []byte("alert(1)"), contents)
	_, ok = tree.GetFileContents("missing.txt")
	assert.False(t, ok)

	size, ok := tree.GetFileSize("index.html")
	require.True(t, ok)
	assert.Equal(t, int64(len("<h1>hi</h1>")), size)

	mod, ok := tree.GetFileLastModified("index.html")
	require.True(t, ok)
	assert.True(t, testModTime.Equal(mod))
	_, ok = tree.GetFileLastModified("missing.txt")
	assert.False(t, ok)
}

func TestTree_Directories(t *testing.T) {
	t.Parallel()

	srv, hits := newOrigin(t, map[string]string{"a.txt": "a", "dir/b.txt": "b", "dir/sub/c.txt": "c"})
	tree, err := New(srv.URL, "proj", "")
	require.NoError(t, err)

	assert.True(t, tree.HasDirectory(""))
	assert.True(t, tree.HasDirectory("dir"))
	assert.True(t, tree.HasDirectory("dir/sub/"))
	assert.False(t, tree.HasDirectory("a.txt"))

	names, err := tree.ListDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/"}, names)

	names, err = tree.ListDirectory("dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "sub/"}, names)

	_, err = tree.ListDirectory("nope")
	assert.ErrorIs(t, err, mimic.ErrNotFound)

	assert.Equal(t, int32(1), hits.Load(), "manifest must be fetched once")
	tree.Refresh()
	assert.Equal(t, int32(2), hits.Load())
}

func TestTree_Files(t *testing.T) {
	t.Parallel()

	srv, _ := newOrigin(t, map[string]string{"a.txt": "a", "dir/b.txt": "b"})
	tree, err := New(srv.URL, "proj", "")
	require.NoError(t, err)

	files := tree.Files("/dir")
	require.Len(t, files, 1)
	assert.Equal(t, "dir/b.txt", files[0].Path)
	assert.Equal(t, []byte("b"), files[0].Contents)
	assert.Len(t, tree.Files(""), 2)
}

func TestTree_NoManifest(t *testing.T) {
	t.Parallel()

	srv, _ := newOrigin(t, map[string]string{"a.txt": "a"})
	tree, err := New(srv.URL, "proj", "", WithManifest(""))
	require.NoError(t, err)

	names, err := tree.ListDirectory("")
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.True(t, tree.HasFile("a.txt"), "files are still reachable directly")
}

type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	resp, _ := args.Get(0).(*http.Response)
	return resp, args.Error(1)
}

func TestTree_SendsHeadersAndAccessKey(t *testing.T) {
	t.Parallel()

	client := &MockHTTPClient{}
	client.On("Do", mock.MatchedBy(func(r *http.Request) bool {
		return r.Method == http.MethodHead &&
			r.URL.String() == "http://origin.test/base/ns/a%20b.txt" &&
			r.Header.Get("Authorization") == "Bearer secret" &&
			r.Header.Get("X-Extra") == "1"
	})).Return(&http.Response{StatusCode: http.StatusOK, Body: http.NoBody, ContentLength: 3}, nil).Once()

	tree, err := New("http://origin.test/base", "ns", "secret",
		WithClient(client), WithHeaders(map[string]string{"X-Extra": "1"}))
	require.NoError(t, err)

	size, ok := tree.GetFileSize("a b.txt")
	require.True(t, ok)
	assert.Equal(t, int64(3), size)
	client.AssertExpectations(t)
}

func TestTree_OriginFailure(t *testing.T) {
	t.Parallel()

	client := &MockHTTPClient{}
	client.On("Do", mock.Anything).Return(nil, errors.New("connection refused"))

	tree, err := New("http://origin.test", "", "", WithClient(client))
	require.NoError(t, err)

	assert.False(t, tree.HasFile("a.txt"))
	_, ok := tree.GetFileContents("a.txt")
	assert.False(t, ok)
	assert.Empty(t, tree.Files(""))
}

func TestTree_RefusesDotSegments(t *testing.T) {
	t.Parallel()

	var seen []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte("other namespace secret"))
	}))
	t.Cleanup(srv.Close)
	tree, err := New(srv.URL, "proj", "")
	require.NoError(t, err)

	tests := []string{
		"../other/secret.txt",
		"/a/../../other/secret.txt",
		"./secret.txt",
		"..",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			assert.False(t, tree.HasFile(path))
			_, ok := tree.GetFileContents(path)
			assert.False(t, ok)
			_, ok = tree.GetFileSize(path)
			assert.False(t, ok)
		})
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, seen, "no request may leave the namespace")
}

func TestNew_RejectsInvalidNamespace(t *testing.T) {
	t.Parallel()

	for _, ns := range []string{"..", ".", "a/b"} {
		_, err := New("http://origin.test", ns, "")
		assert.Error(t, err, ns)
	}
}

func TestTree_FileSizeLimit(t *testing.T) {
	t.Parallel()

	srv, _ := newOrigin(t, map[string]string{"small.txt": "1234", "big.txt": "123456789"})
	tree, err := New(srv.URL, "proj", "")
	require.NoError(t, err)
	tree.maxSize = 4

	contents, ok := tree.GetFileContents("small.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("1234"), contents)
	_, ok = tree.GetFileContents("big.txt")
	assert.False(t, ok, "bodies over the limit must be refused")
}
