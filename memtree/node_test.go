package memtree

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_AddChild(t *testing.T) {
	t.Parallel()

	parent := NewNode("parent")
	child := NewNode("child.txt")

	parent.AddChild(child)

	retrieved, exists := parent.GetChild("child.txt")
	require.True(t, exists)
	assert.Equal(t, child, retrieved)
	assert.Equal(t, parent, child.Parent())
}

func TestNode_RemoveChild(t *testing.T) {
	t.Parallel()

	parent := NewNode("parent")
	child := NewNode("child.txt")
	parent.AddChild(child)

	assert.True(t, parent.RemoveChild("child.txt"))
	assert.False(t, parent.RemoveChild("child.txt"), "second removal must report nothing removed")
	assert.Nil(t, child.Parent(), "removed child must be detached")
}

func TestNode_Path(t *testing.T) {
	t.Parallel()

	root := NewNode("")
	dir := NewNode("dir")
	file := NewNode("file.txt")
	root.AddChild(dir)
	dir.AddChild(file)

	assert.Equal(t, "", root.Path())
	assert.Equal(t, "dir", dir.Path())
	assert.Equal(t, "dir/file.txt", file.Path())
}

func TestNode_RecordIsCopied(t *testing.T) {
	t.Parallel()

	n := NewNode("f")
	data := []byte("hello")
	n.SetRecord(&mimic.FileRecord{Path: "f", Contents: data, LastModified: time.Unix(10, 0)})
	data[0] = 'j'

	rec, ok := n.Record()
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), rec.Contents, "stored contents must not alias the caller's slice")

	rec.Contents[0] = 'y'
	again, _ := n.Record()
	assert.Equal(t, []byte("hello"), again.Contents, "returned contents must not alias the stored slice")
}

func TestNode_ChildNames(t *testing.T) {
	t.Parallel()

	root := NewNode("")
	file := NewNode("b.txt")
	file.SetRecord(&mimic.FileRecord{Path: "b.txt"})
	dir := NewNode("a")
	leaf := NewNode("c")
	leaf.SetRecord(&mimic.FileRecord{Path: "a/c"})
	dir.AddChild(leaf)
	both := NewNode("z")
	both.SetRecord(&mimic.FileRecord{Path: "z"})
	inner := NewNode("y")
	inner.SetRecord(&mimic.FileRecord{Path: "z/y"})
	both.AddChild(inner)

	root.AddChild(file)
	root.AddChild(dir)
	root.AddChild(both)

	assert.Equal(t, []string{"a/", "b.txt", "z", "z/"}, root.ChildNames())
}

func TestNode_ConcurrentAddChild(t *testing.T) {
	t.Parallel()

	parent := NewNode("parent")
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() {
			parent.AddChild(NewNode(fmt.Sprintf("child%d", i)))
		})
	}
	wg.Wait()

	assert.Len(t, parent.Children(), 100)
}
