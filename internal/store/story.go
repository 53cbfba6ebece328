package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/story-api/internal/domain"
)

// Limits applied to story listings.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// StoryFilter narrows a story listing. Zero values mean "no filter".
type StoryFilter struct {
	Skip          int
	Limit         int
	Genre         string // exact match
	Author        string // case-insensitive substring
	PublishedOnly bool
}

// Normalize clamps Skip and Limit into their allowed ranges.
func (f StoryFilter) Normalize() StoryFilter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return f
}

// StoryStore defines the persistence operations for stories.
// Implementations return ErrStoryNotFound for missing rows and never cache
// entities between calls.
type StoryStore interface {
	// Create inserts the story and assigns its ID.
	Create(ctx context.Context, story *domain.Story) error

	// GetByID returns the story with the given ID.
	GetByID(ctx context.Context, id int64) (*domain.Story, error)

	// List returns stories matching the filter, ordered by ID.
	List(ctx context.Context, filter StoryFilter) ([]*domain.Story, error)

	// Update writes every mutable field of the story. There is no version
	// check; the last write wins.
	Update(ctx context.Context, story *domain.Story) error

	// Delete removes the story with the given ID.
	Delete(ctx context.Context, id int64) error

	// WithTx returns a StoryStore bound to the transaction.
	WithTx(tx *sql.Tx) StoryStore
}
