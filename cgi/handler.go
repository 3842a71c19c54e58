// Package cgi runs hosted handlers as classic CGI-style programs: each
// execution gets its own captured input and output streams, and whatever the
// handler writes is parsed back into an HTTP status, headers and body.
package cgi

import (
	"context"
	"io"

	"github.com/brettbedarf/mimic"
	"github.com/brettbedarf/mimic/keyspace"
)

// Request is everything a hosted handler receives for one execution.
type Request struct {
	// ID identifies the execution in logs. Generated if empty.
	ID string
	// Env holds CGI meta-variables (REQUEST_METHOD, PATH_INFO, HTTP_*, ...)
	Env map[string]string
	// AccessKey is the opaque key the request was made with, if any
	AccessKey string
	// Tree is the project's file tree
	Tree mimic.Tree
	// Cache is the request-scoped project cache
	Cache *keyspace.Cache

	// Stdin and Stdout are set by the [Executor] to the captured streams
	Stdin  io.Reader
	Stdout io.Writer
}

// Getenv returns the named meta-variable, or "" if unset
func (r *Request) Getenv(key string) string {
	return r.Env[key]
}

// Handler is a hosted unit of work. It reads its input from req.Stdin and
// writes CGI-style output to req.Stdout. Returning an error, or panicking,
// is a fault.
type Handler interface {
	ServeCGI(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a function to [Handler]
type HandlerFunc func(ctx context.Context, req *Request) error

func (f HandlerFunc) ServeCGI(ctx context.Context, req *Request) error {
	return f(ctx, req)
}
