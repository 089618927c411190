package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"notesync/internal/note/model"
)

// MemoryStore is a mutex-guarded VersionStore. It backs tests and single-node
// embedding; it also satisfies the repository surface (Insert/ListByOwner/
// IsOwner) so a full service can run without Postgres.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]*model.Note
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{notes: make(map[string]*model.Note)}
}

func (s *MemoryStore) Read(ctx context.Context, id string) (*model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, content model.NoteContent) (*SwapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	// Equality only: a base version "newer" than anything issued is just as
	// stale as an old one.
	if n.Version != expectedVersion {
		return &SwapResult{Committed: false, Version: n.Version, Content: n.Content(), UpdatedAt: n.UpdatedAt}, nil
	}
	n.Title = content.Title
	n.Body = content.Body
	n.Version++
	n.UpdatedAt = time.Now()
	return &SwapResult{Committed: true, Version: n.Version, UpdatedAt: n.UpdatedAt}, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, id string, expectedVersion int64) (*SwapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notes[id]
	if !ok {
		return nil, ErrNoteNotFound
	}
	if n.Version != expectedVersion {
		return &SwapResult{Committed: false, Version: n.Version, Content: n.Content(), UpdatedAt: n.UpdatedAt}, nil
	}
	delete(s.notes, id)
	return &SwapResult{Committed: true, Version: expectedVersion}, nil
}

func (s *MemoryStore) Insert(ctx context.Context, n *model.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	s.notes[n.ID] = &cp
	n.CreatedAt = cp.CreatedAt
	n.UpdatedAt = cp.UpdatedAt
	return nil
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerID string) ([]model.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := []model.Note{}
	for _, n := range s.notes {
		if n.OwnerID == ownerID {
			notes = append(notes, *n)
		}
	}
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
	})
	return notes, nil
}

func (s *MemoryStore) IsOwner(ctx context.Context, noteID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notes[noteID]
	if !ok {
		return false, ErrNoteNotFound
	}
	return n.OwnerID == userID, nil
}
