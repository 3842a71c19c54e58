package dirtree

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettbedarf/mimic"
)

func newTestTree(t *testing.T, opts ...Option) *Tree {
	t.Helper()
	tree, err := New(t.TempDir(), "proj", "", opts...)
	require.NoError(t, err)
	return tree
}

func TestNew_CreatesNamespaceDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	tree, err := New(root, "proj", "key")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "proj"), tree.Base())
	info, err := os.Stat(tree.Base())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, tree.HasDirectory("/"))
	assert.True(t, tree.HasDirectory(""))
}

func TestNew_RejectsEscapingNamespace(t *testing.T) {
	t.Parallel()

	_, err := New(t.TempDir(), "../outside", "")
	assert.Error(t, err)
}

func TestTree_SetAndRead(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("/dir/a.txt", []byte("hello")))

	assert.True(t, tree.HasFile("dir/a.txt"))
	assert.True(t, tree.HasFile("/dir/a.txt"), "leading separator must be insignificant")
	assert.True(t, tree.HasDirectory("dir"))
	assert.True(t, tree.HasDirectory("dir/"))
	assert.False(t, tree.HasFile("dir"), "directories are not files")

	contents, ok := tree.GetFileContents("dir/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), contents)

	size, ok := tree.GetFileSize("dir/a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(5), size)

	mod, ok := tree.GetFileLastModified("dir/a.txt")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), mod, time.Minute)
}

func TestTree_MissingFileSentinels(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("dir/a.txt", []byte("x")))

	_, ok := tree.GetFileContents("nope")
	assert.False(t, ok)
	_, ok = tree.GetFileContents("dir")
	assert.False(t, ok, "a directory has no contents")
	_, ok = tree.GetFileSize("nope")
	assert.False(t, ok)
	_, ok = tree.GetFileLastModified("nope")
	assert.False(t, ok)
}

func TestTree_RejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)

	assert.Error(t, tree.SetFile("../evil.txt", []byte("x")))
	assert.False(t, tree.HasFile("../proj/a.txt"))
	_, err := tree.ListDirectory("../")
	assert.ErrorIs(t, err, mimic.ErrNotFound)
	_, err = os.Stat(filepath.Join(filepath.Dir(tree.Base()), "evil.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestTree_ListDirectory(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.PutFiles([]mimic.FileRecord{
		{Path: "b.txt", Contents: []byte("b")},
		{Path: "a/x.txt", Contents: []byte("x")},
		{Path: "a/y/z.txt", Contents: []byte("z")},
		{Path: "c", Contents: []byte("c")},
	}))

	names, err := tree.ListDirectory("/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "b.txt", "c"}, names)

	names, err = tree.ListDirectory("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"x.txt", "y/"}, names)

	_, err = tree.ListDirectory("missing")
	var nf *mimic.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTree_ListDirectory_HidesTempFiles(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(tree.Base(), ".mimic-tmp-123"), []byte("partial"), 0o644))
	require.NoError(t, tree.SetFile("a.txt", []byte("a")))

	names, err := tree.ListDirectory("")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, names)
	assert.Len(t, tree.Files(""), 1)
}

func TestTree_Files(t *testing.T) {
	t.Parallel()

	mod := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	tree := newTestTree(t)
	require.NoError(t, tree.PutFiles([]mimic.FileRecord{
		{Path: "a/b.txt", Contents: []byte("ab"), LastModified: mod},
		{Path: "a.txt", Contents: []byte("a"), LastModified: mod},
		{Path: "z/c.txt", Contents: []byte("zc"), LastModified: mod},
	}))

	all := tree.Files("")
	require.Len(t, all, 3)
	assert.Equal(t, "a.txt", all[0].Path, "sorted by path")
	assert.Equal(t, "a/b.txt", all[1].Path)
	assert.True(t, mod.Equal(all[1].LastModified), "PutFiles must keep LastModified")

	under := tree.Files("/a/")
	require.Len(t, under, 1)
	assert.Equal(t, []byte("ab"), under[0].Contents)
}

func TestTree_MoveFile(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("old/a.txt", []byte("a")))

	moved, err := tree.MoveFile("old/a.txt", "new/dir/a.txt")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.False(t, tree.HasFile("old/a.txt"))
	assert.False(t, tree.HasDirectory("old"), "empty source directory must be pruned")
	contents, ok := tree.GetFileContents("new/dir/a.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("a"), contents)

	moved, err = tree.MoveFile("missing", "x")
	require.NoError(t, err)
	assert.False(t, moved)

	moved, err = tree.MoveFile("new/dir/a.txt", "/new/dir/a.txt")
	require.NoError(t, err)
	assert.True(t, moved, "moving onto itself is a no-op success")
}

func TestTree_DeletePath(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.PutFiles([]mimic.FileRecord{
		{Path: "keep.txt"},
		{Path: "dir/a.txt"},
		{Path: "dir/sub/b.txt"},
	}))

	deleted, err := tree.DeletePath("dir/sub/b.txt")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, tree.HasDirectory("dir/sub"), "empty parent must be pruned")

	deleted, err = tree.DeletePath("keep.txt/")
	require.NoError(t, err)
	assert.False(t, deleted, "trailing separator never matches a file")

	deleted, err = tree.DeletePath("dir")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, tree.HasFile("dir/a.txt"))

	deleted, err = tree.DeletePath("dir")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.True(t, tree.HasFile("keep.txt"))
}

func TestTree_Clear(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("a/b.txt", []byte("b")))

	require.NoError(t, tree.Clear())

	assert.Empty(t, tree.Files(""))
	assert.True(t, tree.HasDirectory("/"), "root survives Clear")
	names, err := tree.ListDirectory("/")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTree_SetFileOverDirectory(t *testing.T) {
	t.Parallel()

	tree := newTestTree(t)
	require.NoError(t, tree.SetFile("a/b.txt", []byte("b")))

	assert.Error(t, tree.SetFile("a", []byte("x")))
	assert.Error(t, tree.SetFile("/", []byte("x")))
}

func TestTree_ReadOnly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proj"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "proj", "a.txt"), []byte("a"), 0o644))
	tree, err := New(root, "proj", "", WithReadOnly())
	require.NoError(t, err)

	assert.False(t, tree.IsMutable())
	assert.True(t, tree.HasFile("a.txt"))
	assert.ErrorIs(t, tree.SetFile("b.txt", nil), mimic.ErrUnsupported)
	assert.ErrorIs(t, tree.Clear(), mimic.ErrUnsupported)
	_, err = tree.MoveFile("a.txt", "b.txt")
	assert.ErrorIs(t, err, mimic.ErrUnsupported)
	_, err = tree.DeletePath("a.txt")
	assert.ErrorIs(t, err, mimic.ErrUnsupported)
	assert.ErrorIs(t, tree.PutFiles(nil), mimic.ErrUnsupported)
	assert.True(t, tree.HasFile("a.txt"))
}
