package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/maneesh/tagdrop/internal/common"
	"github.com/maneesh/tagdrop/internal/keywords"
	"github.com/maneesh/tagdrop/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// mysqlErrDuplicateEntry is ER_DUP_ENTRY
const mysqlErrDuplicateEntry = 1062

const fileColumns = `f.id, f.display_name, f.caption, f.media_kind, f.added_by, f.added_at,
	GROUP_CONCAT(k.keyword ORDER BY k.position SEPARATOR ',')`

const fileGroupBy = `GROUP BY f.id, f.display_name, f.caption, f.media_kind, f.added_by, f.added_at
	ORDER BY f.added_at ASC, f.id ASC`

// TiDBClient wraps TiDB operations with tracing
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient initializes a new TiDB client
func NewTiDBClient(dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return NewTiDBClientWithDB(db), nil
}

// NewTiDBClientWithDB wraps an already opened database handle
func NewTiDBClientWithDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// Ping checks that the database is reachable
func (tc *TiDBClient) Ping(ctx context.Context) error {
	return tc.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (tc *TiDBClient) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return tc.db.BeginTx(ctx, nil)
}

// CreateFile inserts a file record and its keywords in one transaction
func (tc *TiDBClient) CreateFile(ctx context.Context, file *models.FileRecord) error {
	ctx, span := tracer.Start(ctx, "tidb.create_file",
		trace.WithAttributes(
			attribute.String("file_id", file.ID),
			attribute.String("file_name", file.DisplayName),
			attribute.Int("keyword_count", len(file.Keywords)),
		),
	)
	defer span.End()

	if len(file.Keywords) == 0 {
		return fmt.Errorf("%w: file %s has no keywords", common.ErrValidation, file.ID)
	}
	if kw, found := keywords.Oversized(file.Keywords); found {
		return fmt.Errorf("%w: keyword %.20q... exceeds %d characters", common.ErrValidation, kw, keywords.MaxLength)
	}

	tx, err := tc.BeginTx(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO files (id, display_name, caption, media_kind, added_by, added_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query, file.ID, file.DisplayName, file.Caption, string(file.Kind), file.AddedBy, file.AddedAt)
	if err != nil {
		span.RecordError(err)
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlErrDuplicateEntry {
			return fmt.Errorf("file %s: %w", file.ID, common.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert file: %w", err)
	}

	placeholders := make([]string, 0, len(file.Keywords))
	args := make([]any, 0, 3*len(file.Keywords))
	for i, kw := range file.Keywords {
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, file.ID, kw, i)
	}
	query = `INSERT INTO file_keywords (file_id, keyword, position) VALUES ` + strings.Join(placeholders, ", ")

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert keywords: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to commit file: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// DeleteFile removes a file record and its keywords, returning the number
// of file records removed (0 or 1)
func (tc *TiDBClient) DeleteFile(ctx context.Context, fileID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "tidb.delete_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	tx, err := tc.BeginTx(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_keywords WHERE file_id = ?`, fileID); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete keywords: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, fileID)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to delete file: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}

	span.SetAttributes(attribute.Int64("removed", removed))
	return removed, nil
}

// GetFile retrieves a file record by ID with tracing
func (tc *TiDBClient) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_file",
		trace.WithAttributes(
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + `
			  FROM files f JOIN file_keywords k ON k.file_id = f.id
			  WHERE f.id = ?
			  ` + fileGroupBy

	files, err := tc.queryFiles(ctx, query, fileID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if len(files) == 0 {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("file %s: %w", fileID, common.ErrNotFound)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &files[0], nil
}

// FindByKeywords returns records having at least one keyword equal to one
// of terms. Terms must already be normalized.
func (tc *TiDBClient) FindByKeywords(ctx context.Context, terms []string) ([]models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_by_keywords",
		trace.WithAttributes(
			attribute.StringSlice("terms", terms),
		),
	)
	defer span.End()

	if len(terms) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(terms)), ", ")
	args := make([]any, len(terms))
	for i, t := range terms {
		args[i] = t
	}

	query := `SELECT ` + fileColumns + `
			  FROM files f JOIN file_keywords k ON k.file_id = f.id
			  WHERE f.id IN (SELECT file_id FROM file_keywords WHERE keyword IN (` + placeholders + `))
			  ` + fileGroupBy

	files, err := tc.queryFiles(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("match_count", len(files)))
	return files, nil
}

// FindByKeywordSubstring returns records having a keyword that contains
// fragment. Keywords are stored lower-cased, so fragment must be too.
func (tc *TiDBClient) FindByKeywordSubstring(ctx context.Context, fragment string) ([]models.FileRecord, error) {
	ctx, span := tracer.Start(ctx, "tidb.find_by_keyword_substring",
		trace.WithAttributes(
			attribute.String("fragment", fragment),
		),
	)
	defer span.End()

	query := `SELECT ` + fileColumns + `
			  FROM files f JOIN file_keywords k ON k.file_id = f.id
			  WHERE f.id IN (SELECT file_id FROM file_keywords WHERE keyword LIKE ? ESCAPE '\\')
			  ` + fileGroupBy

	files, err := tc.queryFiles(ctx, query, "%"+escapeLike(fragment)+"%")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("match_count", len(files)))
	return files, nil
}

// GetQuota returns the delivery count for a user on day (YYYY-MM-DD), or 0
func (tc *TiDBClient) GetQuota(ctx context.Context, userID int64, day string) (int, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_quota",
		trace.WithAttributes(
			attribute.Int64("user_id", userID),
			attribute.String("day", day),
		),
	)
	defer span.End()

	var count int
	err := tc.db.QueryRowContext(ctx, `SELECT count FROM daily_quota WHERE user_id = ? AND day = ?`, userID, day).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	} else if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to query quota: %w", err)
	}

	span.SetAttributes(attribute.Int("count", count))
	return count, nil
}

// IncrementQuota creates or increments the counter for (userID, day) and
// returns the new value. The upsert stores the new count through
// LAST_INSERT_ID(expr) so the value comes back with the statement result.
func (tc *TiDBClient) IncrementQuota(ctx context.Context, userID int64, day string) (int, error) {
	ctx, span := tracer.Start(ctx, "tidb.increment_quota",
		trace.WithAttributes(
			attribute.Int64("user_id", userID),
			attribute.String("day", day),
		),
	)
	defer span.End()

	query := `INSERT INTO daily_quota (user_id, day, count) VALUES (?, ?, LAST_INSERT_ID(1))
			  ON DUPLICATE KEY UPDATE count = LAST_INSERT_ID(count + 1)`

	res, err := tc.db.ExecContext(ctx, query, userID, day)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to increment quota: %w", err)
	}

	count, err := res.LastInsertId()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to read quota count: %w", err)
	}

	span.SetAttributes(attribute.Int64("count", count))
	return int(count), nil
}

func (tc *TiDBClient) queryFiles(ctx context.Context, query string, args ...any) ([]models.FileRecord, error) {
	rows, err := tc.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	var files []models.FileRecord
	for rows.Next() {
		var (
			file     models.FileRecord
			kind     string
			keywords string
		)
		err := rows.Scan(
			&file.ID,
			&file.DisplayName,
			&file.Caption,
			&kind,
			&file.AddedBy,
			&file.AddedAt,
			&keywords,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		file.Kind = models.MediaKind(kind)
		file.Keywords = strings.Split(keywords, ",")
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return files, nil
}

// escapeLike escapes LIKE wildcards so fragment matches literally
func escapeLike(fragment string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(fragment)
}
