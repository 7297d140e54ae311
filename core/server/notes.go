package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/azzcolabs/concierge/core/notes"
)

// Notes error copy, rendered verbatim by the widget.
const (
	notesErrDisabled     = "API notes désactivée"
	notesErrVisitorID    = "visitorId valide requis"
	notesErrInvalidID    = "ID invalide"
	notesErrUnauthorized = "Non autorisé"
	notesErrNotFound     = "Note non trouvée"
	notesErrTitle        = "Le titre est requis"
	notesErrNoFields     = "Au moins un champ (title ou content) doit être fourni"
)

type notesListResponse struct {
	Success bool         `json:"success"`
	Notes   []notes.Note `json:"notes"`
	Error   string       `json:"error,omitempty"`
}

type noteResponse struct {
	Success bool        `json:"success"`
	Note    *notes.Note `json:"note,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type noteBody struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	VisitorID string  `json:"visitorId"`
}

func (s *Server) registerNotesRoutes() {
	s.mux.HandleFunc("GET /api/notes", s.notesGuard(s.handleListNotes))
	s.mux.HandleFunc("POST /api/notes", s.notesGuard(s.requireWriteToken(s.handleCreateNote)))
	s.mux.HandleFunc("GET /api/notes/{id}", s.notesGuard(s.handleGetNote))
	s.mux.HandleFunc("PUT /api/notes/{id}", s.notesGuard(s.requireWriteToken(s.handleUpdateNote)))
	s.mux.HandleFunc("DELETE /api/notes/{id}", s.notesGuard(s.requireWriteToken(s.handleDeleteNote)))
}

// notesGuard rejects every request when the notes API is switched off.
func (s *Server) notesGuard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.notes == nil {
			writeJSON(w, http.StatusForbidden, noteResponse{Error: notesErrDisabled})
			return
		}
		next(w, r)
	}
}

// requireWriteToken gates mutations behind the shared x-notes-token
// header. An empty configured token leaves writes open, for local use.
func (s *Server) requireWriteToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.NotesWriteToken != "" && r.Header.Get("x-notes-token") != s.opts.NotesWriteToken {
			writeJSON(w, http.StatusUnauthorized, noteResponse{Error: notesErrUnauthorized})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	visitorID := r.URL.Query().Get("visitorId")
	if !notes.ValidVisitorID(visitorID) {
		writeJSON(w, http.StatusBadRequest, notesListResponse{Notes: []notes.Note{}, Error: notesErrVisitorID})
		return
	}

	list, err := s.notes.List(r.Context(), visitorID)
	if err != nil {
		s.logger.Warn("notes list failed", "error", err)
		writeJSON(w, http.StatusOK, notesListResponse{Notes: []notes.Note{}, Error: "Erreur lors de la récupération des notes"})
		return
	}
	if list == nil {
		list = []notes.Note{}
	}
	writeJSON(w, http.StatusOK, notesListResponse{Success: true, Notes: list})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := notePathID(w, r)
	if !ok {
		return
	}
	visitorID := r.URL.Query().Get("visitorId")
	if !notes.ValidVisitorID(visitorID) {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: notesErrVisitorID})
		return
	}

	note, err := s.notes.Get(r.Context(), id, visitorID)
	if errors.Is(err, notes.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, noteResponse{Error: notesErrNotFound})
		return
	}
	if err != nil {
		s.logger.Warn("notes get failed", "error", err)
		writeJSON(w, http.StatusOK, noteResponse{Error: "Erreur lors de la récupération de la note"})
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Success: true, Note: note})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var body noteBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: "invalid JSON body"})
		return
	}
	if !notes.ValidVisitorID(body.VisitorID) {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: notesErrVisitorID})
		return
	}
	if body.Title == nil || *body.Title == "" {
		writeJSON(w, http.StatusOK, noteResponse{Error: notesErrTitle})
		return
	}

	content := ""
	if body.Content != nil {
		content = *body.Content
	}
	note, err := s.notes.Create(r.Context(), body.VisitorID, *body.Title, content)
	if err != nil {
		s.logger.Warn("notes create failed", "error", err)
		writeJSON(w, http.StatusOK, noteResponse{Error: "Erreur lors de la création de la note"})
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Success: true, Note: note})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := notePathID(w, r)
	if !ok {
		return
	}

	var body noteBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: "invalid JSON body"})
		return
	}
	if !notes.ValidVisitorID(body.VisitorID) {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: notesErrVisitorID})
		return
	}
	if body.Title == nil && body.Content == nil {
		writeJSON(w, http.StatusOK, noteResponse{Error: notesErrNoFields})
		return
	}

	note, err := s.notes.Apply(r.Context(), id, body.VisitorID, notes.Update{
		Title:   body.Title,
		Content: body.Content,
	})
	if errors.Is(err, notes.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, noteResponse{Error: notesErrNotFound})
		return
	}
	if err != nil {
		s.logger.Warn("notes update failed", "error", err)
		writeJSON(w, http.StatusOK, noteResponse{Error: "Erreur lors de la mise à jour de la note"})
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Success: true, Note: note})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := notePathID(w, r)
	if !ok {
		return
	}
	visitorID := r.URL.Query().Get("visitorId")
	if !notes.ValidVisitorID(visitorID) {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: notesErrVisitorID})
		return
	}

	err := s.notes.Delete(r.Context(), id, visitorID)
	if errors.Is(err, notes.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, noteResponse{Error: notesErrNotFound})
		return
	}
	if err != nil {
		s.logger.Warn("notes delete failed", "error", err)
		writeJSON(w, http.StatusOK, noteResponse{Error: "Erreur lors de la suppression de la note"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Note supprimée avec succès"})
}

func notePathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, noteResponse{Error: notesErrInvalidID})
		return 0, false
	}
	return id, true
}
