package auth

import (
	"context"
	"database/sql"
	"errors"

	"notesync/pkg/logger"
)

var ErrUserNotFound = errors.New("auth: user not found")

type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Insert(ctx context.Context, id, username, passwordHash string) (*User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, username, created_at`,
		id, username, passwordHash,
	).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert user %s: %v", username, err)
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetCredentials(ctx context.Context, username string) (userID, passwordHash string, err error) {
	err = r.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username = $1`, username,
	).Scan(&userID, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrUserNotFound
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to look up user %s: %v", username, err)
	}
	return userID, passwordHash, err
}

func (r *UserRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`, username,
	).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check username %s: %v", username, err)
	}
	return exists, err
}
