package mocks

import (
	"context"

	"github.com/brettbedarf/mimic/cgi"
	"github.com/stretchr/testify/mock"
)

// MockHandler implements cgi.Handler for testing across packages
type MockHandler struct {
	mock.Mock
}

func (m *MockHandler) ServeCGI(ctx context.Context, req *cgi.Request) error {
	args := m.Called(ctx, req)

	// Handle function return types so tests can write to req.Stdout
	if fn, ok := args.Get(0).(func(context.Context, *cgi.Request) error); ok {
		return fn(ctx, req)
	}
	return args.Error(0)
}

var _ cgi.Handler = (*MockHandler)(nil)
