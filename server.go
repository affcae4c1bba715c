package main

import (
	"net/http"
)

// server adds the configured headers to every response of Handler.
type server struct {
	http.Handler
	header http.Header
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for k, values := range s.header {
		for _, v := range values {
			w.Header().Set(k, v)
		}
	}
	if r.Method == http.MethodOptions && s.header.Get("Access-Control-Allow-Origin") != "" {
		// CORS preflight
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-smcp, x-smcp-token")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger.Debugf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
	s.Handler.ServeHTTP(w, r)
}
