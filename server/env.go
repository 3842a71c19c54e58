package server

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ServerSoftware is reported to hosted handlers as SERVER_SOFTWARE
const ServerSoftware = "mimic"

// cgiEnv builds the RFC 3875 meta-variables for r. The access key is never
// passed to the hosted handler.
func (s *Server) cgiEnv(r *http.Request, pathInfo, scriptName string) map[string]string {
	env := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_SOFTWARE":   ServerSoftware,
		"SERVER_PROTOCOL":   r.Proto,
		"REQUEST_METHOD":    r.Method,
		"REQUEST_URI":       r.URL.RequestURI(),
		"PATH_INFO":         pathInfo,
		"SCRIPT_NAME":       scriptName,
		"QUERY_STRING":      stripParam(r.URL.RawQuery, AccessKeyParam),
	}

	host, port, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
		port = "80"
		if r.TLS != nil {
			port = "443"
		}
	}
	env["SERVER_NAME"] = host
	env["SERVER_PORT"] = port
	if r.TLS != nil {
		env["HTTPS"] = "on"
	}

	if remoteHost, remotePort, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		env["REMOTE_ADDR"] = remoteHost
		env["REMOTE_HOST"] = remoteHost
		env["REMOTE_PORT"] = remotePort
	} else {
		env["REMOTE_ADDR"] = r.RemoteAddr
		env["REMOTE_HOST"] = r.RemoteAddr
	}

	if r.ContentLength > 0 {
		env["CONTENT_LENGTH"] = strconv.FormatInt(r.ContentLength, 10)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		env["CONTENT_TYPE"] = ct
	}

	for name, values := range r.Header {
		switch http.CanonicalHeaderKey(name) {
		case "Content-Type", "Content-Length", AccessKeyHeader:
			continue
		case "Proxy":
			// HTTP_PROXY would configure outbound proxies in CGI programs (httpoxy)
			continue
		}
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
		env[key] = strings.Join(values, ", ")
	}
	if _, ok := env["HTTP_HOST"]; !ok && r.Host != "" {
		env["HTTP_HOST"] = r.Host
	}
	return env
}

// stripParam removes every occurrence of name from a raw query string,
// leaving the rest untouched.
func stripParam(rawQuery, name string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(key); err == nil && k == name {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}
