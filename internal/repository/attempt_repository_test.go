package repository

import (
    "context"
    "database/sql"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/inkstream/inkstream-server/internal/model"
)

func TestAttemptRepoActiveBlock(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewAttemptRepo(db)

    now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

    t.Run("no block rows means nil, not an error", func(t *testing.T) {
        mock.ExpectQuery(`SELECT block_until FROM signup_attempts`).
            WithArgs("203.0.113.7", now).
            WillReturnError(sql.ErrNoRows)

        until, err := repo.ActiveBlock(context.Background(), "203.0.113.7", now)
        require.NoError(t, err)
        assert.Nil(t, until)
    })

    t.Run("active block returns its expiry", func(t *testing.T) {
        expiry := now.Add(45 * time.Minute)
        mock.ExpectQuery(`SELECT block_until FROM signup_attempts`).
            WillReturnRows(sqlmock.NewRows([]string{"block_until"}).AddRow(expiry))

        until, err := repo.ActiveBlock(context.Background(), "203.0.113.7", now)
        require.NoError(t, err)
        require.NotNil(t, until)
        assert.Equal(t, expiry, *until)
    })

    require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepoInsertStoresNullsForMissingOptionals(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewAttemptRepo(db)

    at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

    mock.ExpectExec(`INSERT INTO signup_attempts`).
        WithArgs(nil, "203.0.113.7", nil, at, false, nil).
        WillReturnResult(sqlmock.NewResult(1, 1))

    err = repo.Insert(context.Background(), model.SignupAttempt{
        IP:          "203.0.113.7",
        AttemptedAt: at,
        Successful:  false,
    })
    require.NoError(t, err)
    require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepoInsertBlock(t *testing.T) {
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    defer db.Close()
    repo := NewAttemptRepo(db)

    at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
    until := at.Add(time.Hour)

    mock.ExpectExec(`INSERT INTO signup_attempts \(ip, attempted_at, successful, block_until\)`).
        WithArgs("203.0.113.7", at, until).
        WillReturnResult(sqlmock.NewResult(1, 1))

    require.NoError(t, repo.InsertBlock(context.Background(), "203.0.113.7", at, until))
    require.NoError(t, mock.ExpectationsWereMet())
}
