package repository

import (
	"context"
	"database/sql"
	"errors"

	"notesync/internal/note/model"
	"notesync/internal/note/store"
	"notesync/pkg/logger"
)

type NoteRepository struct {
	DB *sql.DB
}

func NewNoteRepository(db *sql.DB) *NoteRepository {
	return &NoteRepository{DB: db}
}

func (r *NoteRepository) Insert(ctx context.Context, n *model.Note) error {
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO notes (id, owner_id, title, body, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at`,
		n.ID, n.OwnerID, n.Title, n.Body, n.Version,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert note %s: %v", n.ID, err)
	}
	return err
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, owner_id, title, body, version, created_at, updated_at
		FROM notes WHERE owner_id = $1
		ORDER BY updated_at DESC`, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list notes for user %s: %v", ownerID, err)
		return nil, err
	}
	defer rows.Close()

	notes := []model.Note{}
	for rows.Next() {
		var n model.Note
		if err := rows.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Body, &n.Version, &n.CreatedAt, &n.UpdatedAt); err != nil {
			continue
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (r *NoteRepository) IsOwner(ctx context.Context, noteID, userID string) (bool, error) {
	var ownerID string
	err := r.DB.QueryRowContext(ctx, `SELECT owner_id FROM notes WHERE id = $1`, noteID).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, store.ErrNoteNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get owner for note %s: %v", noteID, err)
		return false, err
	}
	return ownerID == userID, nil
}
