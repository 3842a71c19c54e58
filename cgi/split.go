package cgi

import (
	"bytes"
	"strings"
)

// Split parses CGI-style output into a [Response].
//
// The output starts with an optional block of "Name: Value" lines ended by a
// blank line; everything after that boundary is the body, byte for byte.
// Lines starting with a space or tab continue the previous header.
// A "Status" header becomes the status line and is dropped from the headers.
//
// If the first line is not a header the whole input is the body. A non-header
// line after at least one header ends the block early and starts the body.
// Split never fails.
func Split(raw []byte) *Response {
	resp := &Response{Status: DefaultStatus}
	var headers []HeaderField

	rest := raw
	for len(rest) > 0 {
		line, next := cutLine(rest)
		if len(line) == 0 {
			rest = next
			break
		}
		if (line[0] == ' ' || line[0] == '\t') && len(headers) > 0 {
			last := &headers[len(headers)-1]
			last.Value = strings.TrimSpace(last.Value + " " + string(bytes.TrimSpace(line)))
			rest = next
			continue
		}
		name, value, ok := parseHeaderLine(line)
		if !ok {
			break
		}
		headers = append(headers, HeaderField{Name: name, Value: value})
		rest = next
	}

	resp.Body = bytes.Clone(rest)
	if resp.Body == nil {
		resp.Body = []byte{}
	}

	statusSeen := false
	resp.Header = make([]HeaderField, 0, len(headers))
	for _, h := range headers {
		if strings.EqualFold(h.Name, "Status") {
			if !statusSeen {
				resp.Status = h.Value
				statusSeen = true
			}
			continue
		}
		resp.Header = append(resp.Header, h)
	}
	return resp
}

// cutLine splits b after the first newline. The returned line has its line
// ending ("\n" or "\r\n") removed.
func cutLine(b []byte) (line, rest []byte) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return bytes.TrimSuffix(b, []byte{'\r'}), nil
	}
	return bytes.TrimSuffix(b[:i], []byte{'\r'}), b[i+1:]
}

// parseHeaderLine parses "Name: Value". Name must be a non-empty run of
// printable ASCII other than ':' and space.
func parseHeaderLine(line []byte) (name, value string, ok bool) {
	i := bytes.IndexByte(line, ':')
	if i <= 0 {
		return "", "", false
	}
	for _, c := range line[:i] {
		if c < 0x21 || c > 0x7e {
			return "", "", false
		}
	}
	return string(line[:i]), strings.TrimSpace(string(line[i+1:])), true
}
