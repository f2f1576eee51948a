package cmdbind

import (
	"fmt"
	"net/http"

	"github.com/nlstn/go-cmdbind/internal/binder"
	"github.com/nlstn/go-cmdbind/internal/observability"
	"github.com/nlstn/go-cmdbind/internal/response"
)

// ServeHTTP implements the http.Handler interface. Command endpoints only
// accept POST requests with a JSON body.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	entry, exists := s.endpoints[r.URL.Path]
	s.mu.RUnlock()

	if !exists {
		if err := response.WriteError(w, http.StatusNotFound, "NotFound",
			fmt.Sprintf("No command endpoint is registered at '%s'", r.URL.Path), ""); err != nil {
			s.logger.Error("Failed to write error response", "error", err)
		}
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		if err := response.WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed",
			fmt.Sprintf("Method %s is not supported, use POST", r.Method), ""); err != nil {
			s.logger.Error("Failed to write error response", "error", err)
		}
		return
	}

	binding, ok := s.binder.Bind(w, r, binder.Endpoint{Path: entry.path, Family: entry.family})
	if !ok {
		// Bind already wrote the error response.
		return
	}

	if entry.handler != nil {
		entry.handler(w, r, binding)
		return
	}

	if err := response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"command":  binding.Metadata.CommandName,
		"accepted": true,
	}); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// Handler returns the service wrapped in its configured middleware: request
// tracing, Server-Timing, and bearer token identity extraction. Use this
// rather than the bare service when serving requests.
func (s *Service) Handler(parser *TokenParser) http.Handler {
	var h http.Handler = s
	if parser != nil {
		h = parser.Middleware(s.logger)(h)
	}
	if s.obs != nil {
		if s.obs.ServerTimingEnabled() {
			h = observability.ServerTimingMiddleware(s.obs)(h)
		}
		h = observability.HTTPMiddleware(s.obs)(h)
	}
	return h
}

// ListenAndServe starts the command service on the specified address without
// token authentication. Callers needing bearer tokens should build their own
// server around Handler.
func (s *Service) ListenAndServe(addr string) error {
	s.logger.Info("Starting command service", "addr", addr)
	return http.ListenAndServe(addr, s.Handler(nil))
}
