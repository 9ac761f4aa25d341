package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/keywords"
	"github.com/maneesh/tagdrop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fileRowColumns = []string{"id", "display_name", "caption", "media_kind", "added_by", "added_at", "keywords"}

func newTiDBWithMock(t *testing.T) (*TiDBClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewTiDBClientWithDB(db), mock
}

func sampleRecord() *models.FileRecord {
	return &models.FileRecord{
		ID:          "f1",
		DisplayName: "War Film.mp4",
		Keywords:    []string{"war", "action"},
		Caption:     "war, Action",
		Kind:        models.KindVideo,
		AddedBy:     42,
		AddedAt:     time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC),
	}
}

func TestCreateFile_Success(t *testing.T) {
	tc, mock := newTiDBWithMock(t)
	rec := sampleRecord()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO files \(id, display_name, caption, media_kind, added_by, added_at\)`).
		WithArgs("f1", "War Film.mp4", "war, Action", "video", int64(42), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO file_keywords \(file_id, keyword, position\) VALUES \(\?, \?, \?\), \(\?, \?, \?\)`).
		WithArgs("f1", "war", 0, "f1", "action", 1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, tc.CreateFile(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFile_Duplicate(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO files`).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'f1' for key 'PRIMARY'"})
	mock.ExpectRollback()

	err := tc.CreateFile(context.Background(), sampleRecord())
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFile_KeywordInsertFailsRollsBack(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO files`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO file_keywords`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := tc.CreateFile(context.Background(), sampleRecord())
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFile_NoKeywords(t *testing.T) {
	tc, mock := newTiDBWithMock(t)
	rec := sampleRecord()
	rec.Keywords = nil

	err := tc.CreateFile(context.Background(), rec)
	assert.ErrorIs(t, err, common.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFile_KeywordTooLong(t *testing.T) {
	tc, mock := newTiDBWithMock(t)
	rec := sampleRecord()
	rec.Keywords = []string{"war", strings.Repeat("k", keywords.MaxLength+1)}

	err := tc.CreateFile(context.Background(), rec)
	assert.ErrorIs(t, err, common.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFile(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
	}{
		{"existing", 1},
		{"missing", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, mock := newTiDBWithMock(t)

			mock.ExpectBegin()
			mock.ExpectExec(`DELETE FROM file_keywords WHERE file_id = \?`).
				WithArgs("f1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected*2))
			mock.ExpectExec(`DELETE FROM files WHERE id = \?`).
				WithArgs("f1").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))
			mock.ExpectCommit()

			removed, err := tc.DeleteFile(context.Background(), "f1")
			require.NoError(t, err)
			assert.Equal(t, tt.affected, removed)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestGetFile(t *testing.T) {
	tc, mock := newTiDBWithMock(t)
	added := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .+ FROM files f JOIN file_keywords k ON k\.file_id = f\.id WHERE f\.id = \? GROUP BY`).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("f1", "War Film.mp4", "", "video", int64(42), added, "war,action"))

	rec, err := tc.GetFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "War Film.mp4", rec.DisplayName)
	assert.Equal(t, models.KindVideo, rec.Kind)
	assert.Equal(t, []string{"war", "action"}, rec.Keywords)
	assert.Equal(t, added, rec.AddedAt)
}

func TestGetFile_NotFound(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectQuery(`SELECT .+ FROM files f`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	_, err := tc.GetFile(context.Background(), "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestFindByKeywords(t *testing.T) {
	tc, mock := newTiDBWithMock(t)
	added := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE f\.id IN \(SELECT file_id FROM file_keywords WHERE keyword IN \(\?, \?\)\) GROUP BY .+ ORDER BY f\.added_at ASC, f\.id ASC`).
		WithArgs("avatar", "movie").
		WillReturnRows(sqlmock.NewRows(fileRowColumns).
			AddRow("a1", "Avatar", "", "video", int64(1), added, "avatar").
			AddRow("a2", "Avatar 2", "sequel", "video", int64(1), added.Add(time.Minute), "avatar,movie"))

	files, err := tc.FindByKeywords(context.Background(), []string{"avatar", "movie"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a1", files[0].ID)
	assert.Equal(t, []string{"avatar", "movie"}, files[1].Keywords)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeywords_NoTermsSkipsQuery(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	files, err := tc.FindByKeywords(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, files)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByKeywords_QueryError(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrConnDone)

	_, err := tc.FindByKeywords(context.Background(), []string{"war"})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestFindByKeywordSubstring_EscapesWildcards(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectQuery(`WHERE keyword LIKE \? ESCAPE`).
		WithArgs(`%50\%\_off%`).
		WillReturnRows(sqlmock.NewRows(fileRowColumns))

	files, err := tc.FindByKeywordSubstring(context.Background(), "50%_off")
	require.NoError(t, err)
	assert.Empty(t, files)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQuota(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectQuery(`SELECT count FROM daily_quota WHERE user_id = \? AND day = \?`).
		WithArgs(int64(7), "2026-10-16").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectQuery(`SELECT count FROM daily_quota`).
		WithArgs(int64(7), "2026-10-17").
		WillReturnRows(sqlmock.NewRows([]string{"count"}))

	count, err := tc.GetQuota(context.Background(), 7, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = tc.GetQuota(context.Background(), 7, "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIncrementQuota_ReturnsUpsertedCount(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectExec(`INSERT INTO daily_quota \(user_id, day, count\) VALUES \(\?, \?, LAST_INSERT_ID\(1\)\) ON DUPLICATE KEY UPDATE count = LAST_INSERT_ID\(count \+ 1\)`).
		WithArgs(int64(7), "2026-10-16").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO daily_quota`).
		WithArgs(int64(7), "2026-10-16").
		WillReturnResult(sqlmock.NewResult(2, 2))

	first, err := tc.IncrementQuota(context.Background(), 7, "2026-10-16")
	require.NoError(t, err)
	second, err := tc.IncrementQuota(context.Background(), 7, "2026-10-16")
	require.NoError(t, err)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementQuota_Error(t *testing.T) {
	tc, mock := newTiDBWithMock(t)

	mock.ExpectExec(`INSERT INTO daily_quota`).WillReturnError(errors.New("tikv timeout"))

	_, err := tc.IncrementQuota(context.Background(), 7, "2026-10-16")
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\\b\%c\_d`, escapeLike(`a\b%c_d`))
	assert.Equal(t, "plain", escapeLike("plain"))
}
