package cgi

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/pkg/errors"
)

// HandlerFault describes a hosted handler failure: a returned error or a
// recovered panic. It never escapes [Executor.Execute].
type HandlerFault struct {
	Kind    string // Go type of the fault value
	Message string
	Stack   string
	Err     error // underlying error, if the fault was one
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *HandlerFault) Unwrap() error {
	return f.Err
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// errorFault converts an error returned by a handler. When the error chain
// carries no stack, one is recorded at the call site.
func errorFault(err error) *HandlerFault {
	var st stackTracer
	if !errors.As(err, &st) {
		err = errors.WithStack(err)
		errors.As(err, &st)
	}
	cause := errors.Cause(err)
	return &HandlerFault{
		Kind:    fmt.Sprintf("%T", cause),
		Message: err.Error(),
		Stack:   fmt.Sprintf("%+v", st.StackTrace()),
		Err:     err,
	}
}

// panicFault converts a recovered panic value
func panicFault(v any, stack []byte) *HandlerFault {
	f := &HandlerFault{
		Kind:  fmt.Sprintf("%T", v),
		Stack: string(stack),
	}
	if err, ok := v.(error); ok {
		f.Message = err.Error()
		f.Err = err
	} else {
		f.Message = fmt.Sprint(v)
	}
	return f
}

var faultTemplate = template.Must(template.New("fault").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Status}}</title></head>
<body>
<h1>{{.Status}}</h1>
<h2>{{.Fault.Kind}}</h2>
<p>{{.Fault.Message}}</p>
{{- if .ShowStack}}
<pre>{{.Fault.Stack}}</pre>
{{- end}}
</body>
</html>
`))

// RenderFault renders f as an HTML diagnostic page. The stack trace is only
// included when showStack is set.
func RenderFault(f *HandlerFault, showStack bool) []byte {
	var buf bytes.Buffer
	data := struct {
		Status    string
		Fault     *HandlerFault
		ShowStack bool
	}{ErrorStatus, f, showStack}
	if err := faultTemplate.Execute(&buf, data); err != nil {
		// template is static; only a write failure on buf could land here
		return []byte(template.HTMLEscapeString(f.Error()))
	}
	return buf.Bytes()
}

// FaultResponse builds the fixed 500 response for a handler fault
func FaultResponse(f *HandlerFault, showStack bool) *Response {
	return &Response{
		Status: ErrorStatus,
		Header: []HeaderField{{Name: "Content-Type", Value: "text/html; charset=utf-8"}},
		Body:   RenderFault(f, showStack),
	}
}
