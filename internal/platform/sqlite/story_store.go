package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/platform/logger"
	"github.com/phrazzld/story-api/internal/store"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const storyColumns = `id, title, content, author, genre, is_published, created_at, updated_at`

// SQLiteStoryStore implements store.StoryStore on SQLite. Timestamps are
// stored as RFC 3339 text in UTC.
type SQLiteStoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLiteStoryStore creates a story store over db.
func NewSQLiteStoryStore(db store.DBTX, logger *slog.Logger) *SQLiteStoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "story_store"), slog.String("driver", "sqlite")),
	}
}

var _ store.StoryStore = (*SQLiteStoryStore)(nil)

// Create validates and inserts story, then sets its ID.
func (s *SQLiteStoryStore) Create(ctx context.Context, story *domain.Story) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := story.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO stories (title, content, author, genre, is_published, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		story.Title,
		story.Content,
		story.Author,
		nullString(story.Genre),
		story.IsPublished,
		formatTime(story.CreatedAt),
		formatTimePtr(story.UpdatedAt),
	)
	if err != nil {
		log.Error("failed to create story", slog.String("error", err.Error()))
		return store.NewStoreError("story", "create", "failed to insert story", mapError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return store.NewStoreError("story", "create", "failed to read story id", err)
	}
	story.ID = id

	log.Info("story created", slog.Int64("story_id", id))
	return nil
}

// GetByID returns store.ErrStoryNotFound when no row matches.
func (s *SQLiteStoryStore) GetByID(ctx context.Context, id int64) (*domain.Story, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = ?`, id)
	story, err := scanStory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrStoryNotFound
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get story",
			slog.String("error", err.Error()), slog.Int64("story_id", id))
		return nil, store.NewStoreError("story", "get", "failed to query story", mapError(err))
	}
	return story, nil
}

// List returns the stories matching filter, ordered by ID.
func (s *SQLiteStoryStore) List(ctx context.Context, filter store.StoryFilter) ([]*domain.Story, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []any
	)
	if filter.Genre != "" {
		where = append(where, "genre = ?")
		args = append(args, filter.Genre)
	}
	if filter.Author != "" {
		where = append(where, "lower(author) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.Author)+"%")
	}
	if filter.PublishedOnly {
		where = append(where, "is_published = 1")
	}

	query := `SELECT ` + storyColumns + ` FROM stories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Skip)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.NewStoreError("story", "list", "failed to query stories", mapError(err))
	}
	defer func() { _ = rows.Close() }()

	stories := make([]*domain.Story, 0, filter.Limit)
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, store.NewStoreError("story", "list", "failed to scan story", err)
		}
		stories = append(stories, story)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError("story", "list", "failed to iterate stories", err)
	}
	return stories, nil
}

// Update writes every mutable column of story.
func (s *SQLiteStoryStore) Update(ctx context.Context, story *domain.Story) error {
	if err := story.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE stories
		SET title = ?, content = ?, author = ?, genre = ?, is_published = ?, updated_at = ?
		WHERE id = ?`,
		story.Title,
		story.Content,
		story.Author,
		nullString(story.Genre),
		story.IsPublished,
		formatTimePtr(story.UpdatedAt),
		story.ID,
	)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to update story",
			slog.String("error", err.Error()), slog.Int64("story_id", story.ID))
		return store.NewStoreError("story", "update", "failed to update story", mapError(err))
	}
	return checkRowsAffected(result)
}

// Delete removes the story with the given ID.
func (s *SQLiteStoryStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return store.NewStoreError("story", "delete", "failed to delete story", mapError(err))
	}
	return checkRowsAffected(result)
}

// WithTx returns a store bound to tx.
func (s *SQLiteStoryStore) WithTx(tx *sql.Tx) store.StoryStore {
	return &SQLiteStoryStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*domain.Story, error) {
	var (
		story     domain.Story
		genre     sql.NullString
		createdAt string
		updatedAt sql.NullString
	)
	if err := row.Scan(
		&story.ID,
		&story.Title,
		&story.Content,
		&story.Author,
		&genre,
		&story.IsPublished,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if genre.Valid {
		story.Genre = &genre.String
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	story.CreatedAt = t

	if updatedAt.Valid {
		u, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", updatedAt.String, err)
		}
		story.UpdatedAt = &u
	}
	return &story, nil
}

func checkRowsAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrStoryNotFound
	}
	return nil
}

// mapError translates constraint failures into store errors.
func mapError(err error) error {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
