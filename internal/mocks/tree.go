package mocks

import (
	"time"

	"github.com/brettbedarf/mimic"
	"github.com/stretchr/testify/mock"
)

// MockTree implements the read-only mimic.Tree contract for testing across
// packages. It deliberately does not implement mimic.MutableTree.
type MockTree struct {
	mock.Mock
}

func (m *MockTree) IsMutable() bool {
	return m.Called().Bool(0)
}

func (m *MockTree) HasFile(path string) bool {
	return m.Called(path).Bool(0)
}

func (m *MockTree) HasDirectory(path string) bool {
	return m.Called(path).Bool(0)
}

func (m *MockTree) GetFileContents(path string) ([]byte, bool) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]byte), args.Bool(1)
}

func (m *MockTree) GetFileSize(path string) (int64, bool) {
	args := m.Called(path)
	return args.Get(0).(int64), args.Bool(1)
}

func (m *MockTree) GetFileLastModified(path string) (time.Time, bool) {
	args := m.Called(path)
	return args.Get(0).(time.Time), args.Bool(1)
}

func (m *MockTree) ListDirectory(path string) ([]string, error) {
	args := m.Called(path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockTree) Files(prefix string) []mimic.FileRecord {
	args := m.Called(prefix)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]mimic.FileRecord)
}

var _ mimic.Tree = (*MockTree)(nil)
