package server

import (
	"net/http"
	"slices"
)

// applyCORS sets CORS headers for allowed origins. It reports true when the
// request was a preflight that has been fully answered.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	w.Header().Add("Vary", "Origin")
	if !slices.Contains(s.opts.CORSAllowedOrigins, origin) && !slices.Contains(s.opts.CORSAllowedOrigins, "*") {
		return false
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Credentials", "true")
	if s.opts.CORSAllowedHeaders != "" {
		h.Set("Access-Control-Allow-Headers", s.opts.CORSAllowedHeaders)
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}
