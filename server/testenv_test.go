package server

import (
	"encoding/json"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/memtree"
)

const testNamespace = "_mimic"

// testEnv is an in-memory Environment with one tree per namespace
type testEnv struct {
	mu       sync.Mutex
	trees    map[string]*memtree.Tree
	key      string   // required access key, "" accepts any
	hosts    []string // nil allows any host
	readOnly bool
	treeErr  error
}

func newTestEnv() *testEnv {
	return &testEnv{trees: make(map[string]*memtree.Tree)}
}

func (e *testEnv) Namespace() string { return testNamespace }

func (e *testEnv) ValidateAccessKey(key string) bool {
	return e.key == "" || key == e.key
}

func (e *testEnv) tree(namespace string) *memtree.Tree {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.trees[namespace]
	if !ok {
		var opts []memtree.Option
		if e.readOnly {
			opts = append(opts, memtree.WithReadOnly())
		}
		t = memtree.New(namespace, "", opts...)
		e.trees[namespace] = t
	}
	return t
}

func (e *testEnv) seed(namespace string, files ...mimic.FileRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trees[namespace] = memtree.New(namespace, "", memtree.WithFiles(files))
}

func (e *testEnv) NewTree(namespace, accessKey string) (mimic.Tree, error) {
	if e.treeErr != nil {
		return nil, e.treeErr
	}
	return e.tree(namespace), nil
}

func (e *testEnv) AllowedHost(host string) bool {
	return e.hosts == nil || slices.Contains(e.hosts, host)
}

func (e *testEnv) JSONEncoder(w io.Writer) *json.Encoder {
	return json.NewEncoder(w)
}

var errTreeUnavailable = errors.New("tree unavailable")

var _ Environment = (*testEnv)(nil)
