package memtree

import (
	"bytes"
	"slices"
	"sync"

	"github.com/brettbedarf/mimic"
	"github.com/puzpuzpuz/xsync/v4"
)

// Node is a single path segment of the tree. A Node holds a file when its
// record is set and is a directory while it has children; it can be both.
type Node struct {
	name     string                    // Name of the node (last part of the path). Protected by mu
	parent   *Node                     // Protected by mu
	record   *mimic.FileRecord         // Protected by mu
	mu       sync.RWMutex              // Protects the fields above
	children *xsync.Map[string, *Node] // thread-safe map of child nodes by name
}

// NewNode creates a detached Node
//
// NOTE: Parent node is responsible for adding itself to the returned Node's
// parent ref when linking as its child
func NewNode(name string) *Node {
	return &Node{
		name:     name,
		children: xsync.NewMap[string, *Node](),
	}
}

// Name returns the node's immutable name.
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// Path returns the path of the node relative from root.
// If the node is the root or detached, returns its own name.
func (n *Node) Path() string {
	n.mu.RLock()
	name, parent := n.name, n.parent
	n.mu.RUnlock()

	if parent == nil {
		return name
	}
	pPath := parent.Path()
	if pPath == "" {
		// relative from root
		return name
	}
	return pPath + mimic.Separator + name
}

// AddChild adds a child node to the node's children map
// and sets the child's parent to this node
func (n *Node) AddChild(child *Node) {
	n.children.Store(child.name, child)

	child.mu.Lock()
	defer child.mu.Unlock()
	child.parent = n
}

// GetChild returns a child node.
func (n *Node) GetChild(name string) (child *Node, ok bool) {
	return n.children.Load(name)
}

// RemoveChild detaches the named child. Returns false if there was none.
func (n *Node) RemoveChild(name string) bool {
	if child, exists := n.children.LoadAndDelete(name); exists {
		child.mu.Lock()
		defer child.mu.Unlock()
		child.parent = nil
		return true
	}
	return false
}

// Parent returns the parent node, nil for the root or a detached node
func (n *Node) Parent() *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.parent
}

// IsFile reports whether a file record is stored at this node
func (n *Node) IsFile() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.record != nil
}

// IsDir reports whether the node has children
func (n *Node) IsDir() bool {
	return n.children.Size() > 0
}

// IsEmpty reports whether the node holds neither a file nor children
func (n *Node) IsEmpty() bool {
	return !n.IsFile() && !n.IsDir()
}

// Record returns a copy of the node's file record
func (n *Node) Record() (mimic.FileRecord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.record == nil {
		return mimic.FileRecord{}, false
	}
	rec := *n.record
	rec.Contents = bytes.Clone(rec.Contents)
	return rec, true
}

// SetRecord stores rec at this node, or clears the file when rec is nil.
// The node keeps its own copy of the contents.
func (n *Node) SetRecord(rec *mimic.FileRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if rec == nil {
		n.record = nil
		return
	}
	cp := *rec
	cp.Contents = bytes.Clone(rec.Contents)
	if cp.Contents == nil {
		cp.Contents = []byte{}
	}
	n.record = &cp
}

// ChildNames returns the sorted names of the node's children. Children that
// are directories are listed with a trailing separator; a child that is both
// a file and a directory is listed twice.
func (n *Node) ChildNames() []string {
	names := make([]string, 0, n.children.Size())
	n.children.Range(func(name string, ch *Node) bool {
		if ch.IsFile() {
			names = append(names, name)
		}
		if ch.IsDir() {
			names = append(names, name+mimic.Separator)
		}
		return true
	})
	slices.Sort(names)
	return names
}

// Children returns the child nodes sorted by name
func (n *Node) Children() []*Node {
	children := make([]*Node, 0, n.children.Size())
	n.children.Range(func(_ string, ch *Node) bool {
		children = append(children, ch)
		return true
	})
	slices.SortFunc(children, func(a, b *Node) int {
		switch {
		case a.name < b.name:
			return -1
		case a.name > b.name:
			return 1
		}
		return 0
	})
	return children
}

// ClearChildren detaches every child
func (n *Node) ClearChildren() {
	n.children.Range(func(name string, _ *Node) bool {
		n.RemoveChild(name)
		return true
	})
}
