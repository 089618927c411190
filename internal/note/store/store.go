// Package store owns the authoritative version stamp and content for each
// note. CompareAndSwap is the single synchronization point of the system:
// a write lands if and only if its expected version equals the stored one
// at the instant of the swap.
package store

import (
	"context"
	"errors"
	"time"

	"notesync/internal/note/model"
)

var (
	ErrNoteNotFound     = errors.New("note store: note not found")
	ErrStoreUnavailable = errors.New("note store: backend unavailable")
)

// SwapResult reports one atomic attempt. When Committed is true, Version is
// the freshly issued version. When false, Version/Content/UpdatedAt describe
// the current stored state so the loser can be shown what actually won;
// nothing was mutated.
type SwapResult struct {
	Committed bool
	Version   int64
	Content   model.NoteContent
	UpdatedAt time.Time
}

// VersionStore is the persistence boundary for the OCC protocol. Versions are
// per-note logical counters: strictly increasing, bumped by exactly 1 on every
// committed write, never derived from wall clocks.
type VersionStore interface {
	Read(ctx context.Context, id string) (*model.Note, error)
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, content model.NoteContent) (*SwapResult, error)
	CompareAndDelete(ctx context.Context, id string, expectedVersion int64) (*SwapResult, error)
}
