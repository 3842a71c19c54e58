// Package trees maps tree type names to constructors so the backing store
// can be picked by configuration.
package trees

import (
	"fmt"
	"slices"
	"sync"

	"github.com/brettbedarf/mimic"
)

// Options carries the backend settings a constructor may need. Each
// constructor reads only the fields relevant to it.
type Options struct {
	Root     string            // base directory (dir)
	URL      string            // origin base URL (http), custom endpoint (s3)
	Headers  map[string]string // extra origin request headers (http)
	Bucket   string            // bucket name (s3)
	Region   string            // bucket region (s3)
	ReadOnly bool
}

// Constructor builds a tree for one namespace
type Constructor func(opts Options, namespace, accessKey string) (mimic.Tree, error)

var (
	mu           sync.RWMutex
	constructors = map[string]Constructor{}
)

// Register ties a constructor to a tree type and should be called for each
// type during app init. Registering a type again replaces it.
func Register(treeType string, c Constructor) {
	mu.Lock()
	constructors[treeType] = c
	mu.Unlock()
}

// Get returns the constructor registered for treeType
func Get(treeType string) (Constructor, error) {
	mu.RLock()
	c, ok := constructors[treeType]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no tree registered for type %q", treeType)
	}
	return c, nil
}

// Types returns the registered tree types, sorted
func Types() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(constructors))
	for k := range constructors {
		types = append(types, k)
	}
	slices.Sort(types)
	return types
}

// New builds a tree of treeType for namespace
func New(treeType string, opts Options, namespace, accessKey string) (mimic.Tree, error) {
	c, err := Get(treeType)
	if err != nil {
		return nil, err
	}
	t, err := c(opts, namespace, accessKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s tree for namespace %q: %w", treeType, namespace, err)
	}
	return t, nil
}

// Factory binds treeType and opts into a [mimic.Factory]
func Factory(treeType string, opts Options) mimic.Factory {
	return func(namespace, accessKey string) (mimic.Tree, error) {
		return New(treeType, opts, namespace, accessKey)
	}
}
