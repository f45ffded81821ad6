package server

import (
	"net/http"
	"strings"

	"github.com/jacq-os/jacq/internal/router"
)

// handleGetContext retrieves the memory context for a query and reports how
// the query would be routed.
func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "q parameter required")
		return
	}
	owner := s.ownerParam(r, "")

	mc := s.engine.Retrieve(r.Context(), owner, q)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"owner":   owner,
		"route":   router.Route(q),
		"context": mc.Narrative,
		"memory":  mc,
	})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		badRequest(w, "q parameter required")
		return
	}
	writeJSON(w, http.StatusOK, router.Route(q))
}
