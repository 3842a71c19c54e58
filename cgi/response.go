package cgi

import (
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultStatus is used when a handler does not emit a Status header
	DefaultStatus = "200 OK"
	// ErrorStatus is used for responses derived from a handler fault
	ErrorStatus = "500 Server Error"
)

// HeaderField is a single response header. Order and duplicates matter
// (e.g. Set-Cookie), so headers are kept as a slice rather than a map.
type HeaderField struct {
	Name  string
	Value string
}

// Response is the status, headers and body derived from one execution.
type Response struct {
	Status string
	Header []HeaderField
	Body   []byte
}

// StatusCode returns the numeric code from the status line, or 500 if the
// line does not start with a valid code.
func (r *Response) StatusCode() int {
	code, _, _ := strings.Cut(strings.TrimSpace(r.Status), " ")
	n, err := strconv.Atoi(code)
	if err != nil || n < 100 || n > 999 {
		return http.StatusInternalServerError
	}
	return n
}

// Get returns the first value of the named header, case-insensitively
func (r *Response) Get(name string) string {
	for _, h := range r.Header {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Values returns every value of the named header in order
func (r *Response) Values(name string) []string {
	var vals []string
	for _, h := range r.Header {
		if strings.EqualFold(h.Name, name) {
			vals = append(vals, h.Value)
		}
	}
	return vals
}

// Write sends the response to w, preserving header order.
func (r *Response) Write(w http.ResponseWriter) error {
	hdr := w.Header()
	for _, h := range r.Header {
		hdr.Add(h.Name, h.Value)
	}
	w.WriteHeader(r.StatusCode())
	_, err := w.Write(r.Body)
	return err
}
