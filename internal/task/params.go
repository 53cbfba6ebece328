package task

import (
	"encoding/json"
	"fmt"

	"github.com/phrazzld/story-api/internal/domain"
)

// Params is the typed argument set of one task kind. The interface is
// sealed; every implementation lives in this file.
type Params interface {
	Kind() Kind
	params()
}

// retryOptOut is implemented by params that can disable retries.
type retryOptOut interface {
	retryDisabled() bool
}

// CreateStoryParams creates a story.
type CreateStoryParams struct {
	Title       string  `json:"title"`
	Content     string  `json:"content"`
	Author      string  `json:"author"`
	Genre       *string `json:"genre,omitempty"`
	IsPublished bool    `json:"is_published"`
}

// UpdateStoryParams applies a partial update to a story.
type UpdateStoryParams struct {
	StoryID int64             `json:"story_id"`
	Patch   domain.StoryPatch `json:"patch"`
	NoRetry bool              `json:"no_retry,omitempty"`
}

// DeleteStoryParams deletes a story.
type DeleteStoryParams struct {
	StoryID int64 `json:"story_id"`
	NoRetry bool  `json:"no_retry,omitempty"`
}

// PatchStoryParams applies a small patch, such as a publish flag change.
type PatchStoryParams struct {
	StoryID int64             `json:"story_id"`
	Patch   domain.StoryPatch `json:"patch"`
}

// GenerateStoryParams asks the model for a new story.
type GenerateStoryParams struct {
	Prompt      string   `json:"prompt"`
	Genre       string   `json:"genre"`
	Length      string   `json:"length"`
	Style       string   `json:"style"`
	ModelName   string   `json:"model_name,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// AnalyzeStoryParams asks the model to analyze a story.
type AnalyzeStoryParams struct {
	Content      string `json:"content"`
	AnalysisType string `json:"analysis_type"`
	ModelName    string `json:"model_name,omitempty"`
}

// SummarizeStoryParams asks the model to summarize a story.
type SummarizeStoryParams struct {
	Content       string `json:"content"`
	SummaryLength string `json:"summary_length"`
	Focus         string `json:"focus"`
	ModelName     string `json:"model_name,omitempty"`
}

// ImproveStoryParams asks the model to rewrite a story.
type ImproveStoryParams struct {
	Content         string `json:"content"`
	ImprovementType string `json:"improvement_type"`
	FocusArea       string `json:"focus_area"`
	TargetAudience  string `json:"target_audience"`
	TargetStyle     string `json:"target_style,omitempty"`
	ModelName       string `json:"model_name,omitempty"`
}

func (CreateStoryParams) Kind() Kind    { return KindCreateStory }
func (UpdateStoryParams) Kind() Kind    { return KindUpdateStory }
func (DeleteStoryParams) Kind() Kind    { return KindDeleteStory }
func (PatchStoryParams) Kind() Kind     { return KindPatchStory }
func (GenerateStoryParams) Kind() Kind  { return KindGenerateStory }
func (AnalyzeStoryParams) Kind() Kind   { return KindAnalyzeStory }
func (SummarizeStoryParams) Kind() Kind { return KindSummarizeStory }
func (ImproveStoryParams) Kind() Kind   { return KindImproveStory }

func (CreateStoryParams) params()    {}
func (UpdateStoryParams) params()    {}
func (DeleteStoryParams) params()    {}
func (PatchStoryParams) params()     {}
func (GenerateStoryParams) params()  {}
func (AnalyzeStoryParams) params()   {}
func (SummarizeStoryParams) params() {}
func (ImproveStoryParams) params()   {}

func (p UpdateStoryParams) retryDisabled() bool { return p.NoRetry }
func (p DeleteStoryParams) retryDisabled() bool { return p.NoRetry }

var decoders = map[Kind]func(json.RawMessage) (Params, error){
	KindCreateStory:    decodeAs[CreateStoryParams],
	KindUpdateStory:    decodeAs[UpdateStoryParams],
	KindDeleteStory:    decodeAs[DeleteStoryParams],
	KindPatchStory:     decodeAs[PatchStoryParams],
	KindGenerateStory:  decodeAs[GenerateStoryParams],
	KindAnalyzeStory:   decodeAs[AnalyzeStoryParams],
	KindSummarizeStory: decodeAs[SummarizeStoryParams],
	KindImproveStory:   decodeAs[ImproveStoryParams],
}

func decodeAs[P Params](raw json.RawMessage) (Params, error) {
	var p P
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// DecodeParams decodes raw JSON into the params type of kind. Unknown kinds
// and malformed payloads are validation errors.
func DecodeParams(kind Kind, raw json.RawMessage) (Params, error) {
	decode, ok := decoders[kind]
	if !ok {
		return nil, Invalid(fmt.Errorf("%w: %q", ErrUnknownKind, kind))
	}
	p, err := decode(raw)
	if err != nil {
		return nil, Invalid(fmt.Errorf("invalid params for %s: %w", kind, err))
	}
	return p, nil
}
