package service

import (
	"context"
	"errors"
	"fmt"

	"notesync/internal/note/model"
	"notesync/internal/note/store"
)

var ErrMergedContentRequired = errors.New("merge strategy requires merged content")

// ResolutionCoordinator turns a reported conflict into a fresh write attempt.
// Force-overwrite and merge go back through SubmitWrite with the conflict's
// server version as the claimed base, because another write may have landed
// since the conflict was reported. A second conflict comes back in the same
// shape; the coordinator never loops on the caller's behalf.
type ResolutionCoordinator struct {
	detector *ConflictDetector
	store    store.VersionStore
	access   AccessChecker
}

func NewResolutionCoordinator(detector *ConflictDetector, versions store.VersionStore, access AccessChecker) *ResolutionCoordinator {
	return &ResolutionCoordinator{detector: detector, store: versions, access: access}
}

// Resolve applies one caller-chosen strategy to one conflict. merged is only
// consulted for StrategyMerge.
func (c *ResolutionCoordinator) Resolve(ctx context.Context, principal string, conflict model.Conflict, strategy model.Strategy, merged *model.NoteContent) (*model.WriteOutcome, error) {
	switch strategy {
	case model.StrategyForceOverwrite:
		c.detector.metrics.Resolutions.WithLabelValues(string(strategy)).Inc()
		return c.detector.SubmitWrite(ctx, principal, model.WriteRequest{
			NoteID:      conflict.NoteID,
			BaseVersion: conflict.ServerVersion,
			Content:     conflict.AttemptedContent,
		})

	case model.StrategyMerge:
		if merged == nil {
			return nil, ErrMergedContentRequired
		}
		c.detector.metrics.Resolutions.WithLabelValues(string(strategy)).Inc()
		return c.detector.SubmitWrite(ctx, principal, model.WriteRequest{
			NoteID:      conflict.NoteID,
			BaseVersion: conflict.ServerVersion,
			Content:     *merged,
		})

	case model.StrategyDiscardLocal:
		c.detector.metrics.Resolutions.WithLabelValues(string(strategy)).Inc()
		return c.adoptCurrent(ctx, principal, conflict.NoteID)

	default:
		return nil, fmt.Errorf("unknown resolution strategy %q", strategy)
	}
}

// adoptCurrent mutates nothing: the caller abandons their local edit and takes
// the server's state as-is.
func (c *ResolutionCoordinator) adoptCurrent(ctx context.Context, principal, noteID string) (*model.WriteOutcome, error) {
	ok, err := c.access.IsOwner(ctx, noteID, principal)
	if errors.Is(err, store.ErrNoteNotFound) {
		return &model.WriteOutcome{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return &model.WriteOutcome{Status: model.StatusForbidden}, nil
	}

	n, err := c.store.Read(ctx, noteID)
	if errors.Is(err, store.ErrNoteNotFound) {
		return &model.WriteOutcome{Status: model.StatusNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	content := n.Content()
	return &model.WriteOutcome{
		Status:         model.StatusCommitted,
		NewVersion:     n.Version,
		UpdatedAt:      n.UpdatedAt,
		AdoptedContent: &content,
	}, nil
}
