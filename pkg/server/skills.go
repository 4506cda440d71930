package server

import (
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/skills"
)

// handleListSkills handles GET /skills
func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	metadata, err := s.index.Metadata()
	if err != nil {
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, "Failed to load skills.", err, nil)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "skills": metadata})
}

// handleGetSkill handles GET /skills/{filename}
func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	entry, err := s.skills.Get(filename)
	if err != nil {
		s.writeSkillError(w, r, err, "Failed to load skill.")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "skill": skills.MetadataOf(entry)})
}

// handleDeleteSkill handles DELETE /skills/{filename}
func (s *Server) handleDeleteSkill(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]
	if err := s.skills.Delete(filename); err != nil {
		s.writeSkillError(w, r, err, "Failed to delete skill.")
		return
	}
	s.index.Invalidate()
	s.writeJSONResponse(w, http.StatusOK, map[string]any{"ok": true, "filename": filename})
}

func (s *Server) writeSkillError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, skills.ErrInvalidKey):
		s.writeErrorResponse(r.Context(), w, http.StatusBadRequest, "Invalid skill filename.", err, nil)
	case errors.Is(err, fs.ErrNotExist):
		s.writeErrorResponse(r.Context(), w, http.StatusNotFound, "Skill not found.", err, nil)
	default:
		s.writeErrorResponse(r.Context(), w, http.StatusInternalServerError, fallback, err, nil)
	}
}
