package model

import "time"

// NoteContent is the payload the version store swaps atomically. The
// concurrency machinery never inspects it.
type NoteContent struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type Note struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (n *Note) Content() NoteContent {
	return NoteContent{Title: n.Title, Body: n.Body}
}

// WriteRequest is a single OCC write attempt: the claimed base version is the
// version the caller last read, never trusted as ground truth.
type WriteRequest struct {
	NoteID      string      `json:"note_id"`
	BaseVersion int64       `json:"base_version"`
	Content     NoteContent `json:"content"`
}

type OutcomeStatus string

const (
	StatusCommitted OutcomeStatus = "committed"
	StatusConflict  OutcomeStatus = "conflict"
	StatusForbidden OutcomeStatus = "forbidden"
	StatusNotFound  OutcomeStatus = "not_found"
)

// Conflict carries both sides of a lost write so the caller can render a
// three-way choice without a follow-up read.
type Conflict struct {
	NoteID           string      `json:"note_id"`
	ServerVersion    int64       `json:"server_version"`
	ServerContent    NoteContent `json:"server_content"`
	ServerUpdatedAt  time.Time   `json:"server_updated_at"`
	AttemptedContent NoteContent `json:"attempted_content"`
}

// WriteOutcome is the terminal result of one write attempt. Conflict is set
// only for StatusConflict; AdoptedContent is set when a resolution hands the
// server's state back to the caller (discard-local).
type WriteOutcome struct {
	Status         OutcomeStatus
	NewVersion     int64
	UpdatedAt      time.Time
	Conflict       *Conflict
	AdoptedContent *NoteContent
}

// Strategy is the caller-chosen policy for proceeding after a conflict.
type Strategy string

const (
	StrategyForceOverwrite Strategy = "force_overwrite"
	StrategyDiscardLocal   Strategy = "discard_local"
	StrategyMerge          Strategy = "merge"
)

type CreateNoteRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type SaveNoteRequest struct {
	NoteID      string `json:"note_id"`
	BaseVersion int64  `json:"base_version"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

type ResolveRequest struct {
	NoteID        string   `json:"note_id"`
	Strategy      Strategy `json:"strategy"`
	ServerVersion int64    `json:"server_version"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
}

type CommitResponse struct {
	NoteID    string       `json:"note_id"`
	Version   int64        `json:"version"`
	UpdatedAt time.Time    `json:"updated_at"`
	Adopted   *NoteContent `json:"adopted,omitempty"`
}

// ConflictResponse is the wire shape of a 409. It must be identical for a
// first conflict and for a resolution that conflicted again.
type ConflictResponse struct {
	Error           string      `json:"error"`
	Message         string      `json:"message"`
	NoteID          string      `json:"note_id"`
	ServerVersion   int64       `json:"server_version"`
	ServerContent   NoteContent `json:"server_content"`
	ServerUpdatedAt time.Time   `json:"server_updated_at"`
	YourChanges     NoteContent `json:"your_changes"`
}
