package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jacq-os/jacq/internal/memory"
)

// ownerParam returns the owner named by the request, or the server default.
func (s *Server) ownerParam(r *http.Request, fromBody string) string {
	if o := strings.TrimSpace(fromBody); o != "" {
		return o
	}
	if o := strings.TrimSpace(r.URL.Query().Get("owner")); o != "" {
		return o
	}
	return s.owner
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	owner := s.ownerParam(r, "")
	entities, err := s.db.ListEntities(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entities == nil {
		entities = []memory.Entity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    owner,
		"count":    len(entities),
		"entities": entities,
	})
}

func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID      string            `json:"id"`
		OwnerID string            `json:"owner_id"`
		Type    memory.EntityType `json:"type"`
		Name    string            `json:"name"`
		Aliases []string          `json:"aliases"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}

	ent, err := s.engine.AddEntity(r.Context(), memory.Entity{
		ID:      req.ID,
		OwnerID: s.ownerParam(r, req.OwnerID),
		Type:    req.Type,
		Name:    req.Name,
		Aliases: req.Aliases,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (s *Server) handleMentionEntity(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Alias string `json:"alias"`
	}
	// An empty body records a plain mention.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, "invalid json")
		return
	}

	ent, err := s.engine.MentionEntity(r.Context(), chi.URLParam(r, "entityID"), req.Alias)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleAddFact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID    string            `json:"owner_id"`
		SubjectID  string            `json:"subject_id"`
		Predicate  string            `json:"predicate"`
		ObjectID   string            `json:"object_id"`
		ObjectVal  string            `json:"object_value"`
		Confidence float64           `json:"confidence"`
		Source     memory.Source     `json:"source"`
		Provenance memory.Provenance `json:"provenance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ObjectID != "" && req.ObjectVal != "" {
		badRequest(w, "object_id and object_value are mutually exclusive")
		return
	}

	res, err := s.engine.AddFact(r.Context(), memory.Fact{
		OwnerID:    s.ownerParam(r, req.OwnerID),
		SubjectID:  req.SubjectID,
		Predicate:  req.Predicate,
		Object:     memory.ObjectFromColumns(req.ObjectID, req.ObjectVal),
		Confidence: req.Confidence,
		Source:     req.Source,
		Provenance: req.Provenance,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	f, err := s.db.GetFact(r.Context(), chi.URLParam(r, "factID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleTouchFact(w http.ResponseWriter, r *http.Request) {
	f, err := s.engine.TouchFact(r.Context(), chi.URLParam(r, "factID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handlePromoteFact(w http.ResponseWriter, r *http.Request) {
	f, err := s.engine.PromoteFact(r.Context(), chi.URLParam(r, "factID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRetractFact(w http.ResponseWriter, r *http.Request) {
	f, err := s.engine.RetractFact(r.Context(), chi.URLParam(r, "factID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleAddInteraction(w http.ResponseWriter, r *http.Request) {
	var in memory.Interaction
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, "invalid json")
		return
	}
	in.OwnerID = s.ownerParam(r, in.OwnerID)

	stored, err := s.engine.RecordInteraction(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	rep, err := s.engine.RunMaintenance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
