package store

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notesync/internal/note/model"
)

const (
	swapQuery   = `UPDATE notes SET title = \$1, body = \$2, version = version \+ 1, updated_at = NOW\(\)`
	readQuery   = `SELECT id, owner_id, title, body, version, created_at, updated_at`
	deleteQuery = `DELETE FROM notes WHERE id = \$1 AND version = \$2`
)

func noteRow(version int64, title, body string, at time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "title", "body", "version", "created_at", "updated_at"}).
		AddRow("n1", "user1", title, body, version, at, at)
}

func TestPostgresCompareAndSwapCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(swapQuery).
		WithArgs("Title", "Y", "n1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}).AddRow(int64(2), now))

	s := NewPostgresStore(db)
	res, err := s.CompareAndSwap(context.Background(), "n1", 1, model.NoteContent{Title: "Title", Body: "Y"})
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, int64(2), res.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompareAndSwapStaleBaseReturnsCurrent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(swapQuery).
		WithArgs("Title", "Z", "n1", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"})) // no row matched
	mock.ExpectQuery(readQuery).
		WithArgs("n1").
		WillReturnRows(noteRow(2, "Title", "Y", now))

	s := NewPostgresStore(db)
	res, err := s.CompareAndSwap(context.Background(), "n1", 1, model.NoteContent{Title: "Title", Body: "Z"})
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "Y", res.Content.Body)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompareAndSwapMissingNote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// No row matched and the follow-up read finds nothing either: the note
	// was deleted out from under the writer.
	mock.ExpectQuery(swapQuery).
		WithArgs("Title", "Z", "gone", int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "updated_at"}))
	mock.ExpectQuery(readQuery).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "owner_id", "title", "body", "version", "created_at", "updated_at"}))

	s := NewPostgresStore(db)
	_, err = s.CompareAndSwap(context.Background(), "gone", 1, model.NoteContent{Title: "Title", Body: "Z"})
	assert.ErrorIs(t, err, ErrNoteNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompareAndDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(deleteQuery).
		WithArgs("n1", int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewPostgresStore(db)
	res, err := s.CompareAndDelete(context.Background(), "n1", 2)
	require.NoError(t, err)
	assert.True(t, res.Committed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCompareAndDeleteStale(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(deleteQuery).
		WithArgs("n1", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(readQuery).
		WithArgs("n1").
		WillReturnRows(noteRow(2, "Title", "Y", now))

	s := NewPostgresStore(db)
	res, err := s.CompareAndDelete(context.Background(), "n1", 1)
	require.NoError(t, err)
	assert.False(t, res.Committed)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, "Y", res.Content.Body)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRetriesTransientFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// A net.Error (not driver.ErrBadConn, which database/sql retries on its
	// own) exercises the store-level retry.
	now := time.Now()
	mock.ExpectQuery(readQuery).
		WithArgs("n1").
		WillReturnError(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")})
	mock.ExpectQuery(readQuery).
		WithArgs("n1").
		WillReturnRows(noteRow(3, "Title", "Y", now))

	s := NewPostgresStore(db)
	n, err := s.Read(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n.Version)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresTimeoutDuringRetryIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// The deadline expires during the backoff after the first transient
	// failure, so the caller sees an unavailability error, not a commit.
	mock.ExpectQuery(swapQuery).
		WithArgs("Title", "Y", "n1", int64(1)).
		WillReturnError(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s := NewPostgresStore(db)
	res, err := s.CompareAndSwap(ctx, "n1", 1, model.NoteContent{Title: "Title", Body: "Y"})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGivesUpAfterMaxAttempts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for i := 0; i < maxAttempts; i++ {
		mock.ExpectQuery(readQuery).
			WithArgs("n1").
			WillReturnError(&net.OpError{Op: "read", Err: errors.New("connection reset by peer")})
	}

	s := NewPostgresStore(db)
	_, err = s.Read(context.Background(), "n1")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}
