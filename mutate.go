package mimic

// Writable returns t as a [MutableTree] when it both implements the mutating
// methods and reports itself mutable.
func Writable(t Tree) (MutableTree, bool) {
	m, ok := t.(MutableTree)
	if !ok || !m.IsMutable() {
		return nil, false
	}
	return m, true
}

func writable(t Tree, op string) (MutableTree, error) {
	m, ok := Writable(t)
	if !ok {
		return nil, &UnsupportedOperationError{Op: op}
	}
	return m, nil
}

// SetFile sets the contents of a file in t.
// Fails with [*UnsupportedOperationError] if t is immutable.
func SetFile(t Tree, path string, contents []byte) error {
	m, err := writable(t, "SetFile")
	if err != nil {
		return err
	}
	return m.SetFile(path, contents)
}

// Clear removes every file from t.
// Fails with [*UnsupportedOperationError] if t is immutable.
func Clear(t Tree) error {
	m, err := writable(t, "Clear")
	if err != nil {
		return err
	}
	return m.Clear()
}

// MoveFile moves a file within t.
// Fails with [*UnsupportedOperationError] if t is immutable.
func MoveFile(t Tree, path, newpath string) (bool, error) {
	m, err := writable(t, "MoveFile")
	if err != nil {
		return false, err
	}
	return m.MoveFile(path, newpath)
}

// DeletePath removes a file or directory from t.
// Fails with [*UnsupportedOperationError] if t is immutable.
func DeletePath(t Tree, path string) (bool, error) {
	m, err := writable(t, "DeletePath")
	if err != nil {
		return false, err
	}
	return m.DeletePath(path)
}

// PutFiles stores files in t in bulk.
// Fails with [*UnsupportedOperationError] if t is immutable.
func PutFiles(t Tree, files []FileRecord) error {
	m, err := writable(t, "PutFiles")
	if err != nil {
		return err
	}
	return m.PutFiles(files)
}
