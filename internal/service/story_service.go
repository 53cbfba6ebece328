package service

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/store"
	"github.com/phrazzld/story-api/internal/task"
)

// StorySnapshot is the serialized form of a story returned by tasks and
// the read endpoints. Times are RFC 3339 in UTC.
type StorySnapshot struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	Author      string  `json:"author"`
	Genre       *string `json:"genre"`
	IsPublished bool    `json:"is_published"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   *string `json:"updated_at"`
}

// Snapshot converts a story into its serialized form.
func Snapshot(s *domain.Story) *StorySnapshot {
	snap := &StorySnapshot{
		ID:          s.ID,
		Title:       s.Title,
		Content:     s.Content,
		Author:      s.Author,
		Genre:       s.Genre,
		IsPublished: s.IsPublished,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if s.UpdatedAt != nil {
		updated := s.UpdatedAt.UTC().Format(time.RFC3339)
		snap.UpdatedAt = &updated
	}
	return snap
}

// DeleteResult is returned by a successful delete.
type DeleteResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Deleted bool   `json:"deleted"`
}

// StoryService performs story reads and mutations. Every mutation opens
// its own transaction; nothing is cached between calls.
type StoryService struct {
	db      *sql.DB
	stories store.StoryStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewStoryService creates a StoryService. It returns an error if db or
// stories is nil.
func NewStoryService(db *sql.DB, stories store.StoryStore, logger *slog.Logger) (*StoryService, error) {
	if db == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	if stories == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "story store cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &StoryService{
		db:      db,
		stories: stories,
		logger:  logger.With("component", "story_service"),
		now:     time.Now,
	}, nil
}

// Create validates and inserts a new story.
func (s *StoryService) Create(ctx context.Context, p task.CreateStoryParams) (*StorySnapshot, error) {
	story, err := domain.NewStory(p.Title, p.Content, p.Author, p.Genre, p.IsPublished)
	if err != nil {
		return nil, err
	}
	story.CreatedAt = s.now().UTC()

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.stories.WithTx(tx).Create(ctx, story)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to create story", "error", err)
		return nil, NewServiceError("create_story", "failed to save story", err)
	}

	s.logger.InfoContext(ctx, "story created", "story_id", story.ID)
	return Snapshot(story), nil
}

// Update applies the fields set in the patch.
func (s *StoryService) Update(ctx context.Context, p task.UpdateStoryParams) (*StorySnapshot, error) {
	return s.mutate(ctx, "update_story", p.StoryID, p.Patch)
}

// Patch applies a small patch, such as a publish flag change.
func (s *StoryService) Patch(ctx context.Context, p task.PatchStoryParams) (*StorySnapshot, error) {
	return s.mutate(ctx, "patch_story", p.StoryID, p.Patch)
}

func (s *StoryService) mutate(ctx context.Context, op string, id int64, patch domain.StoryPatch) (*StorySnapshot, error) {
	var updated *domain.Story

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.stories.WithTx(tx)

		story, err := txStore.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := patch.Apply(story, s.now()); err != nil {
			return err
		}
		if err := txStore.Update(ctx, story); err != nil {
			return err
		}
		updated = story
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "story mutation failed",
			"operation", op,
			"story_id", id,
			"error", err)
		return nil, NewServiceError(op, "failed to update story", err)
	}

	s.logger.InfoContext(ctx, "story updated", "operation", op, "story_id", id)
	return Snapshot(updated), nil
}

// Delete removes a story and reports what was deleted.
func (s *StoryService) Delete(ctx context.Context, p task.DeleteStoryParams) (*DeleteResult, error) {
	var result *DeleteResult

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		txStore := s.stories.WithTx(tx)

		story, err := txStore.GetByID(ctx, p.StoryID)
		if err != nil {
			return err
		}
		if err := txStore.Delete(ctx, p.StoryID); err != nil {
			return err
		}
		result = &DeleteResult{ID: story.ID, Title: story.Title, Deleted: true}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "story delete failed", "story_id", p.StoryID, "error", err)
		return nil, NewServiceError("delete_story", "failed to delete story", err)
	}

	s.logger.InfoContext(ctx, "story deleted", "story_id", p.StoryID)
	return result, nil
}

// Get returns one story.
func (s *StoryService) Get(ctx context.Context, id int64) (*StorySnapshot, error) {
	story, err := s.stories.GetByID(ctx, id)
	if err != nil {
		return nil, NewServiceError("get_story", "failed to load story", err)
	}
	return Snapshot(story), nil
}

// List returns the stories matching filter, ordered by ID.
func (s *StoryService) List(ctx context.Context, filter store.StoryFilter) ([]*StorySnapshot, error) {
	stories, err := s.stories.List(ctx, filter.Normalize())
	if err != nil {
		return nil, NewServiceError("list_stories", "failed to list stories", err)
	}

	out := make([]*StorySnapshot, 0, len(stories))
	for _, story := range stories {
		out = append(out, Snapshot(story))
	}
	return out, nil
}
