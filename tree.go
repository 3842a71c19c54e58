// Package mimic contains the core domain types and interfaces for hosting one
// app inside another: the virtual file tree contract consumed by hosted
// handlers and dispatch logic.
package mimic

import "time"

// FileRecord is a single file placed at a path in a [Tree].
type FileRecord struct {
	Path         string
	Contents     []byte
	LastModified time.Time
}

// Size returns the length of the record's contents in bytes
func (r FileRecord) Size() int64 {
	return int64(len(r.Contents))
}

// Tree defines the read contract for a hierarchical, path-addressed store of
// files. Instances are scoped to a single namespace.
//
// Read methods signal a missing file with a false second result rather than
// an error so callers can probe for existence cheaply.
type Tree interface {
	// IsMutable reports whether the tree accepts writes
	IsMutable() bool

	// HasFile reports whether a file exists at the full file path
	HasFile(path string) bool

	// HasDirectory reports whether a directory exists.
	// Always true for the root directory ("" or "/").
	HasDirectory(path string) bool

	// GetFileContents returns the contents of the file, or false if the file
	// does not exist
	GetFileContents(path string) ([]byte, bool)

	// GetFileSize returns the size of the file in bytes, or false if the file
	// does not exist
	GetFileSize(path string) (int64, bool)

	// GetFileLastModified returns the time the file was last updated, or false
	// if the file does not exist
	GetFileLastModified(path string) (time.Time, bool)

	// ListDirectory returns the sorted names of the immediate children of a
	// directory. Subdirectory names carry a trailing "/".
	// Returns a [*NotFoundError] if the directory does not exist.
	ListDirectory(path string) ([]string, error)

	// Files returns every file whose path starts with prefix, sorted by path.
	Files(prefix string) []FileRecord
}

// MutableTree is implemented by trees whose contents can be changed.
// All writes must be visible to subsequent reads on the same tree.
type MutableTree interface {
	Tree

	// SetFile sets the contents for a file, creating it if needed
	SetFile(path string, contents []byte) error

	// Clear removes all files from the tree
	Clear() error

	// MoveFile moves or renames an existing file.
	// Returns false without an error if path does not exist.
	MoveFile(path, newpath string) (bool, error)

	// DeletePath deletes a file, or a directory and its contents.
	// Returns true if anything was removed.
	DeletePath(path string) (bool, error)

	// PutFiles stores files in bulk. A zero LastModified is replaced with the
	// current time.
	PutFiles(files []FileRecord) error
}

// Factory creates a tree for a namespace. accessKey is an opaque token
// handed to the backing store.
type Factory func(namespace, accessKey string) (Tree, error)
