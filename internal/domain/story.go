package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits for stories.
const (
	TitleMaxLength  = 200
	AuthorMaxLength = 100
	GenreMaxLength  = 50
)

// Story is a piece of writing owned by the persistence layer. Uniqueness is
// not enforced; two stories may share every field except ID.
type Story struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Author      string     `json:"author"`
	Genre       *string    `json:"genre"`
	IsPublished bool       `json:"is_published"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// NewStory creates an unsaved Story. The ID is assigned by the store on insert
// and UpdatedAt stays nil until the first mutation.
func NewStory(title, content, author string, genre *string, published bool) (*Story, error) {
	story := &Story{
		Title:       title,
		Content:     content,
		Author:      author,
		Genre:       genre,
		IsPublished: published,
		CreatedAt:   time.Now().UTC(),
	}

	if err := story.Validate(); err != nil {
		return nil, err
	}

	return story, nil
}

// Validate checks the required fields and their length limits.
func (s *Story) Validate() error {
	if err := validateText("title", s.Title, TitleMaxLength); err != nil {
		return err
	}
	if strings.TrimSpace(s.Content) == "" {
		return NewValidationError("content", "must not be empty", ErrEmptyContent)
	}
	if err := validateText("author", s.Author, AuthorMaxLength); err != nil {
		return err
	}
	if s.Genre != nil && utf8.RuneCountInString(*s.Genre) > GenreMaxLength {
		return NewValidationError("genre", "must be at most 50 characters", nil)
	}
	return nil
}

func validateText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return NewValidationError(field, "must not be empty", ErrEmptyContent)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return NewValidationError(field, "is too long", nil)
	}
	return nil
}

// StoryPatch lists the fields a partial update sets. Nil fields are left
// unchanged. ClearGenre resets the genre to null and wins over Genre.
type StoryPatch struct {
	Title       *string `json:"title,omitempty"`
	Content     *string `json:"content,omitempty"`
	Author      *string `json:"author,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	ClearGenre  bool    `json:"clear_genre,omitempty"`
	IsPublished *bool   `json:"is_published,omitempty"`
}

// IsEmpty reports whether the patch sets no fields.
func (p StoryPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Author == nil &&
		p.Genre == nil && !p.ClearGenre && p.IsPublished == nil
}

// Apply copies the set fields onto the story, stamps UpdatedAt and validates
// the result. The story is left modified even when validation fails.
func (p StoryPatch) Apply(s *Story, now time.Time) error {
	if p.Title != nil {
		s.Title = *p.Title
	}
	if p.Content != nil {
		s.Content = *p.Content
	}
	if p.Author != nil {
		s.Author = *p.Author
	}
	switch {
	case p.ClearGenre:
		s.Genre = nil
	case p.Genre != nil:
		genre := *p.Genre
		s.Genre = &genre
	}
	if p.IsPublished != nil {
		s.IsPublished = *p.IsPublished
	}

	updated := now.UTC()
	s.UpdatedAt = &updated

	return s.Validate()
}

// PublishPatch returns a patch that only changes the published flag.
func PublishPatch(published bool) StoryPatch {
	return StoryPatch{IsPublished: &published}
}
