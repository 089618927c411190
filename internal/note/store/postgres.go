package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"notesync/internal/note/model"
	"notesync/pkg/logger"
)

const (
	maxAttempts = 3
	baseBackoff = 50 * time.Millisecond
)

// PostgresStore implements VersionStore on top of a conditional UPDATE with an
// equality predicate on the expected version. The row-level atomicity of the
// UPDATE is the critical section; swaps against different note ids never
// serialize against each other.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Read(ctx context.Context, id string) (*model.Note, error) {
	var n *model.Note
	err := s.withRetry(ctx, func() error {
		var readErr error
		n, readErr = s.readRow(ctx, id)
		return readErr
	})
	if err != nil {
		return nil, err
	}
	return n, nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, content model.NoteContent) (*SwapResult, error) {
	var res *SwapResult
	err := s.withRetry(ctx, func() error {
		var swapErr error
		res, swapErr = s.swapOnce(ctx, id, expectedVersion, content)
		return swapErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PostgresStore) swapOnce(ctx context.Context, id string, expectedVersion int64, content model.NoteContent) (*SwapResult, error) {
	var newVersion int64
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `
		UPDATE notes SET title = $1, body = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
		RETURNING version, updated_at`,
		content.Title, content.Body, id, expectedVersion,
	).Scan(&newVersion, &updatedAt)
	if err == nil {
		return &SwapResult{Committed: true, Version: newVersion, UpdatedAt: updatedAt}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("compare and swap %s: %w", id, err)
	}

	// No row matched: either the note is gone or the caller's base version is
	// stale. Fetch the current state so the loser can see what won.
	return s.currentState(ctx, id)
}

func (s *PostgresStore) CompareAndDelete(ctx context.Context, id string, expectedVersion int64) (*SwapResult, error) {
	var res *SwapResult
	err := s.withRetry(ctx, func() error {
		var delErr error
		res, delErr = s.deleteOnce(ctx, id, expectedVersion)
		return delErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *PostgresStore) deleteOnce(ctx context.Context, id string, expectedVersion int64) (*SwapResult, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("compare and delete %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("compare and delete %s: %w", id, err)
	}
	if rows > 0 {
		return &SwapResult{Committed: true, Version: expectedVersion}, nil
	}
	return s.currentState(ctx, id)
}

func (s *PostgresStore) currentState(ctx context.Context, id string) (*SwapResult, error) {
	current, err := s.readRow(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SwapResult{
		Committed: false,
		Version:   current.Version,
		Content:   current.Content(),
		UpdatedAt: current.UpdatedAt,
	}, nil
}

func (s *PostgresStore) readRow(ctx context.Context, id string) (*model.Note, error) {
	var n model.Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, body, version, created_at, updated_at
		FROM notes WHERE id = $1`, id,
	).Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &n.Version, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", id, err)
	}
	return &n, nil
}

// withRetry re-runs fn on transient connectivity failures only. Version
// mismatches are routine results, not errors, and never reach this path.
func (s *PostgresStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return err
		}
		logger.Sugar.Warnf("Transient store failure (attempt %d/%d): %v", attempt, maxAttempts, err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, ctx.Err())
		}
		backoff *= 2
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
