package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"notesync/internal/note/model"
	"notesync/internal/note/store"
	"notesync/pkg/logger"
	"notesync/socket"
)

var ErrForbidden = errors.New("forbidden")

// NoteRepository is the non-OCC persistence surface: creation, listing and the
// ownership lookup the detector delegates to.
type NoteRepository interface {
	AccessChecker
	Insert(ctx context.Context, n *model.Note) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Note, error)
}

type NoteService struct {
	Repo     NoteRepository
	Store    store.VersionStore
	Detector *ConflictDetector
	Resolver *ResolutionCoordinator
	Hub      *socket.Hub
}

func NewNoteService(repo NoteRepository, versions store.VersionStore, detector *ConflictDetector, resolver *ResolutionCoordinator, hub *socket.Hub) *NoteService {
	return &NoteService{Repo: repo, Store: versions, Detector: detector, Resolver: resolver, Hub: hub}
}

// CreateNote starts a note at version 1. Every later mutation goes through the
// OCC write path.
func (s *NoteService) CreateNote(ctx context.Context, ownerID, title, body string) (*model.Note, error) {
	if title == "" {
		title = "Untitled Note"
	}
	n := &model.Note{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Title:   title,
		Body:    body,
		Version: 1,
	}
	if err := s.Repo.Insert(ctx, n); err != nil {
		return nil, err
	}
	logger.Sugar.Infof("Created note %s for user %s", n.ID, ownerID)
	return n, nil
}

func (s *NoteService) ListNotes(ctx context.Context, ownerID string) ([]model.Note, error) {
	return s.Repo.ListByOwner(ctx, ownerID)
}

func (s *NoteService) GetNote(ctx context.Context, principal, noteID string) (*model.Note, error) {
	ok, err := s.Repo.IsOwner(ctx, noteID, principal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return s.Store.Read(ctx, noteID)
}

// SaveNote runs one OCC write attempt and, on commit, notifies watchers.
func (s *NoteService) SaveNote(ctx context.Context, principal string, req model.WriteRequest) (*model.WriteOutcome, error) {
	outcome, err := s.Detector.SubmitWrite(ctx, principal, req)
	if err != nil {
		return nil, err
	}
	if outcome.Status == model.StatusCommitted {
		s.publishUpdate(req.NoteID, principal, outcome.NewVersion, req.Content, outcome)
	}
	return outcome, nil
}

func (s *NoteService) DeleteNote(ctx context.Context, principal, noteID string, baseVersion int64) (*model.WriteOutcome, error) {
	outcome, err := s.Detector.SubmitDelete(ctx, principal, noteID, baseVersion)
	if err != nil {
		return nil, err
	}
	if outcome.Status == model.StatusCommitted && s.Hub != nil {
		s.Hub.RemoveNote(noteID)
	}
	return outcome, nil
}

// ResolveConflict replays a reported conflict with the caller's strategy. The
// request echoes the server version from the 409; for force-overwrite the
// content fields are the original attempt, for merge the merged result.
func (s *NoteService) ResolveConflict(ctx context.Context, principal string, req model.ResolveRequest) (*model.WriteOutcome, error) {
	conflict := model.Conflict{
		NoteID:           req.NoteID,
		ServerVersion:    req.ServerVersion,
		AttemptedContent: model.NoteContent{Title: req.Title, Body: req.Body},
	}

	var merged *model.NoteContent
	if req.Strategy == model.StrategyMerge {
		merged = &model.NoteContent{Title: req.Title, Body: req.Body}
	}

	outcome, err := s.Resolver.Resolve(ctx, principal, conflict, req.Strategy, merged)
	if err != nil {
		return nil, err
	}
	if outcome.Status == model.StatusCommitted && outcome.AdoptedContent == nil {
		s.publishUpdate(req.NoteID, principal, outcome.NewVersion, conflict.AttemptedContent, outcome)
	}
	return outcome, nil
}

func (s *NoteService) publishUpdate(noteID, userID string, version int64, content model.NoteContent, outcome *model.WriteOutcome) {
	if s.Hub == nil {
		return
	}
	payload, err := json.Marshal(socket.UpdatePayload{
		Version:   version,
		Title:     content.Title,
		Body:      content.Body,
		UpdatedAt: outcome.UpdatedAt,
	})
	if err != nil {
		logger.Sugar.Errorf("Error marshalling update payload for note %s: %v", noteID, err)
		return
	}
	s.Hub.Broadcast <- socket.WSMessage{
		Type:    socket.UpdateType,
		NoteID:  noteID,
		UserID:  userID,
		Payload: payload,
	}
}
