package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"notesync/internal/note/model"
	"notesync/internal/note/service"
	"notesync/internal/note/store"
	"notesync/middleware"
	"notesync/pkg/logger"
)

const conflictMessage = "Note has been updated by another user. Please resolve conflicts."

type NoteHandler struct {
	Service *service.NoteService
}

func NewNoteHandler(service *service.NoteService) *NoteHandler {
	return &NoteHandler{Service: service}
}

func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	var req model.CreateNoteRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Empty body defaults to an untitled note

	note, err := h.Service.CreateNote(r.Context(), userID, req.Title, req.Body)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create note: %v", err)
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(note)
}

func (h *NoteHandler) GetNotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	notes, err := h.Service.ListNotes(r.Context(), userID)
	if err != nil {
		logger.Sugar.Errorf("Error fetching notes: %v", err)
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notes)
}

func (h *NoteHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	note, err := h.Service.GetNote(r.Context(), userID, noteID)
	if errors.Is(err, store.ErrNoteNotFound) {
		http.Error(w, "Note not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, service.ErrForbidden) {
		http.Error(w, "Unauthorized: You are not the owner of this note", http.StatusForbidden)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Error fetching note %s: %v", noteID, err)
		writeStoreError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(note)
}

// SaveNote is the OCC write path: the request carries the version the caller
// based their edit on, and a stale base comes back as a 409 carrying both
// sides of the conflict.
func (h *NoteHandler) SaveNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.SaveNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NoteID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	outcome, err := h.Service.SaveNote(r.Context(), userID, model.WriteRequest{
		NoteID:      req.NoteID,
		BaseVersion: req.BaseVersion,
		Content:     model.NoteContent{Title: req.Title, Body: req.Body},
	})
	if err != nil {
		logger.Sugar.Errorf("Error saving note %s: %v", req.NoteID, err)
		writeStoreError(w, err)
		return
	}

	writeOutcome(w, req.NoteID, outcome)
}

func (h *NoteHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NoteID == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	outcome, err := h.Service.ResolveConflict(r.Context(), userID, req)
	if errors.Is(err, service.ErrMergedContentRequired) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		logger.Sugar.Errorf("Error resolving conflict on note %s: %v", req.NoteID, err)
		writeStoreError(w, err)
		return
	}

	writeOutcome(w, req.NoteID, outcome)
}

func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	noteID := r.URL.Query().Get("noteId")
	if noteID == "" {
		http.Error(w, "Missing noteId parameter", http.StatusBadRequest)
		return
	}
	baseVersion, err := strconv.ParseInt(r.URL.Query().Get("baseVersion"), 10, 64)
	if err != nil {
		http.Error(w, "Missing or invalid baseVersion parameter", http.StatusBadRequest)
		return
	}

	userID := r.Context().Value(middleware.UserIDKey).(string)

	outcome, err := h.Service.DeleteNote(r.Context(), userID, noteID, baseVersion)
	if err != nil {
		logger.Sugar.Errorf("Error deleting note %s: %v", noteID, err)
		writeStoreError(w, err)
		return
	}

	writeOutcome(w, noteID, outcome)
}

// writeOutcome maps a terminal write outcome onto the wire. Every conflict,
// first or repeated, uses the identical 409 payload so callers resolve them
// uniformly.
func writeOutcome(w http.ResponseWriter, noteID string, outcome *model.WriteOutcome) {
	switch outcome.Status {
	case model.StatusCommitted:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.CommitResponse{
			NoteID:    noteID,
			Version:   outcome.NewVersion,
			UpdatedAt: outcome.UpdatedAt,
			Adopted:   outcome.AdoptedContent,
		})

	case model.StatusConflict:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(model.ConflictResponse{
			Error:           "conflict",
			Message:         conflictMessage,
			NoteID:          outcome.Conflict.NoteID,
			ServerVersion:   outcome.Conflict.ServerVersion,
			ServerContent:   outcome.Conflict.ServerContent,
			ServerUpdatedAt: outcome.Conflict.ServerUpdatedAt,
			YourChanges:     outcome.Conflict.AttemptedContent,
		})

	case model.StatusForbidden:
		http.Error(w, "Unauthorized: You are not the owner of this note", http.StatusForbidden)

	case model.StatusNotFound:
		http.Error(w, "Note not found", http.StatusNotFound)

	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrStoreUnavailable) {
		http.Error(w, "Storage temporarily unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "Database error", http.StatusInternalServerError)
}
