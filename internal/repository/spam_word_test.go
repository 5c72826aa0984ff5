package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailgovernor/internal/models"
	"github.com/customeros/mailgovernor/internal/utils"
)

func TestSpamWordRepository_CreateDuplicate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSpamWordRepository(db)

	mock.ExpectQuery(`INSERT INTO "spam_words"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Create(context.Background(), &models.SpamWord{Word: "free", Category: "financial", Score: 5, Active: true})
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpamWordRepository_UpdatePartial(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSpamWordRepository(db)

	mock.ExpectExec(`UPDATE "spam_words" SET "active"=\$1,"updated_at"=\$2 WHERE id = \$3`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "spam_words" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "word", "category", "score", "active"}).
			AddRow("sw_1", "free", "financial", 5, false))

	word, err := repo.Update(context.Background(), "sw_1", SpamWordUpdate{Active: utils.Ptr(false)})
	require.NoError(t, err)
	assert.False(t, word.Active)
	assert.Equal(t, 5, word.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpamWordRepository_ListActive(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewSpamWordRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "spam_words" WHERE active = \$1 ORDER BY word ASC`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "word", "score", "active"}).
			AddRow("sw_1", "act now", 5, true).
			AddRow("sw_2", "free", 5, true))

	words, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, words, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}
