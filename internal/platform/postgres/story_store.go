package postgres

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
)

const storyColumns = `id, title, content, author, genre, is_published, created_at, updated_at`

// PostgresStoryStore implements store.StoryStore on PostgreSQL.
type PostgresStoryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresStoryStore creates a story store over a connection or transaction
// owned by the caller. A nil logger falls back to slog.Default().
func NewPostgresStoryStore(db store.DBTX, logger *slog.Logger) *PostgresStoryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStoryStore{
		db:     db,
		logger: logger.With(slog.String("component", "story_store")),
	}
}

var _ store.StoryStore = (*PostgresStoryStore)(nil)

// Create implements store.StoryStore.Create.
func (s *PostgresStoryStore) Create(ctx context.Context, story *domain.Story) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := story.Validate(); err != nil {
		log.Warn("story validation failed during create", slog.String("error", err.Error()))
		return err
	}

	query := `
		INSERT INTO stories (title, content, author, genre, is_published, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		story.Title,
		story.Content,
		story.Author,
		nullString(story.Genre),
		story.IsPublished,
		story.CreatedAt,
		nullTime(story.UpdatedAt),
	).Scan(&story.ID)
	if err != nil {
		log.Error("failed to create story", slog.String("error", err.Error()))
		return store.NewStoreError("story", "create", "failed to insert story", MapError(err))
	}

	log.Info("story created", slog.Int64("story_id", story.ID))
	return nil
}

// GetByID implements store.StoryStore.GetByID.
func (s *PostgresStoryStore) GetByID(ctx context.Context, id int64) (*domain.Story, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + storyColumns + ` FROM stories WHERE id = $1`
	story, err := scanStory(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("story not found", slog.Int64("story_id", id))
			return nil, store.ErrStoryNotFound
		}
		log.Error("failed to get story", slog.String("error", err.Error()), slog.Int64("story_id", id))
		return nil, store.NewStoreError("story", "get", "failed to query story", MapError(err))
	}

	return story, nil
}

// List implements store.StoryStore.List.
func (s *PostgresStoryStore) List(ctx context.Context, filter store.StoryFilter) ([]*domain.Story, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	filter = filter.Normalize()

	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to list stories", slog.String("error", err.Error()))
		return nil, store.NewStoreError("story", "list", "failed to query stories", MapError(err))
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
		return nil, store.NewStoreError("story", "list", "failed to iterate stories", MapError(err))
	}

	return stories, nil
}

func buildListQuery(filter store.StoryFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Genre != "" {
		args = append(args, filter.Genre)
		where = append(where, fmt.Sprintf("genre = $%d", len(args)))
	}
	if filter.Author != "" {
		args = append(args, "%"+filter.Author+"%")
		where = append(where, fmt.Sprintf("author ILIKE $%d", len(args)))
	}
	if filter.PublishedOnly {
		where = append(where, "is_published = TRUE")
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + storyColumns + ` FROM stories`)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, filter.Limit, filter.Skip)
	fmt.Fprintf(&b, " ORDER BY id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return b.String(), args
}

// Update implements store.StoryStore.Update.
func (s *PostgresStoryStore) Update(ctx context.Context, story *domain.Story) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := story.Validate(); err != nil {
		log.Warn("story validation failed during update",
			slog.String("error", err.Error()),
			slog.Int64("story_id", story.ID))
		return err
	}

	query := `
		UPDATE stories
		SET title = $2, content = $3, author = $4, genre = $5, is_published = $6, updated_at = $7
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		story.ID,
		story.Title,
		story.Content,
		story.Author,
		nullString(story.Genre),
		story.IsPublished,
		nullTime(story.UpdatedAt),
	)
	if err != nil {
		log.Error("failed to update story", slog.String("error", err.Error()), slog.Int64("story_id", story.ID))
		return store.NewStoreError("story", "update", "failed to update story", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrStoryNotFound)
}

// Delete implements store.StoryStore.Delete.
func (s *PostgresStoryStore) Delete(ctx context.Context, id int64) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete story", slog.String("error", err.Error()), slog.Int64("story_id", id))
		return store.NewStoreError("story", "delete", "failed to delete story", MapError(err))
	}

	return CheckRowsAffected(result, store.ErrStoryNotFound)
}

// WithTx implements store.StoryStore.WithTx.
func (s *PostgresStoryStore) WithTx(tx *sql.Tx) store.StoryStore {
	return &PostgresStoryStore{db: tx, logger: s.logger}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*domain.Story, error) {
	var (
		story     domain.Story
		genre     sql.NullString
		updatedAt sql.NullTime
	)
	if err := row.Scan(
		&story.ID,
		&story.Title,
		&story.Content,
		&story.Author,
		&genre,
		&story.IsPublished,
		&story.CreatedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if genre.Valid {
		story.Genre = &genre.String
	}
	story.CreatedAt = story.CreatedAt.UTC()
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		story.UpdatedAt = &t
	}
	return &story, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
