package service

import (
	"context"
	"errors"

	"notesync/internal/note/model"
	"notesync/internal/note/store"
	"notesync/pkg/logger"
	"notesync/pkg/metrics"
)

// AccessChecker answers ownership questions. It must be consulted before any
// version comparison so a non-owner never learns current content through a
// conflict response.
type AccessChecker interface {
	IsOwner(ctx context.Context, noteID, userID string) (bool, error)
}

// ConflictDetector validates that a write's claimed base version still matches
// the stored one and translates the store's answer into a terminal outcome for
// this attempt. It never retries: reconciling content is the caller's call.
type ConflictDetector struct {
	store   store.VersionStore
	access  AccessChecker
	metrics *metrics.Metrics
}

func NewConflictDetector(versions store.VersionStore, access AccessChecker, m *metrics.Metrics) *ConflictDetector {
	return &ConflictDetector{store: versions, access: access, metrics: m}
}

func (d *ConflictDetector) SubmitWrite(ctx context.Context, principal string, req model.WriteRequest) (*model.WriteOutcome, error) {
	outcome, err := d.checkOwner(ctx, principal, req.NoteID)
	if outcome != nil || err != nil {
		return outcome, err
	}

	res, err := d.store.CompareAndSwap(ctx, req.NoteID, req.BaseVersion, req.Content)
	if errors.Is(err, store.ErrNoteNotFound) {
		return &model.WriteOutcome{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Committed {
		d.metrics.WriteCommits.Inc()
		return &model.WriteOutcome{Status: model.StatusCommitted, NewVersion: res.Version, UpdatedAt: res.UpdatedAt}, nil
	}

	d.metrics.WriteConflicts.Inc()
	logger.Sugar.Debugf("Version conflict on note %s: base %d, server %d", req.NoteID, req.BaseVersion, res.Version)
	return &model.WriteOutcome{
		Status: model.StatusConflict,
		Conflict: &model.Conflict{
			NoteID:           req.NoteID,
			ServerVersion:    res.Version,
			ServerContent:    res.Content,
			ServerUpdatedAt:  res.UpdatedAt,
			AttemptedContent: req.Content,
		},
	}, nil
}

// SubmitDelete treats deletion as a degenerate write: it must carry a current
// base version and loses to concurrent edits exactly like a save.
func (d *ConflictDetector) SubmitDelete(ctx context.Context, principal, noteID string, baseVersion int64) (*model.WriteOutcome, error) {
	outcome, err := d.checkOwner(ctx, principal, noteID)
	if outcome != nil || err != nil {
		return outcome, err
	}

	res, err := d.store.CompareAndDelete(ctx, noteID, baseVersion)
	if errors.Is(err, store.ErrNoteNotFound) {
		return &model.WriteOutcome{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	if res.Committed {
		d.metrics.WriteCommits.Inc()
		return &model.WriteOutcome{Status: model.StatusCommitted, NewVersion: res.Version}, nil
	}

	d.metrics.WriteConflicts.Inc()
	return &model.WriteOutcome{
		Status: model.StatusConflict,
		Conflict: &model.Conflict{
			NoteID:          noteID,
			ServerVersion:   res.Version,
			ServerContent:   res.Content,
			ServerUpdatedAt: res.UpdatedAt,
		},
	}, nil
}

// checkOwner returns a non-nil outcome when the attempt terminates before the
// swap (missing note or foreign principal).
func (d *ConflictDetector) checkOwner(ctx context.Context, principal, noteID string) (*model.WriteOutcome, error) {
	ok, err := d.access.IsOwner(ctx, noteID, principal)
	if errors.Is(err, store.ErrNoteNotFound) {
		return &model.WriteOutcome{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		d.metrics.WriteForbidden.Inc()
		logger.Sugar.Warnf("Write to note %s rejected: user %s is not the owner", noteID, principal)
		return &model.WriteOutcome{Status: model.StatusForbidden}, nil
	}
	return nil, nil
}
