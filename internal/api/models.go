package api

import (
	"bytes"
	"encoding/json"

	"github.com/phrazzld/story-api/internal/domain"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/phrazzld/story-api/internal/task"
)

// CreateStoryRequest is the body of POST /stories/.
type CreateStoryRequest struct {
	Title       string  `json:"title"        validate:"required,min=1,max=200"`
	Content     string  `json:"content"      validate:"required,min=1"`
	Author      string  `json:"author"       validate:"required,min=1,max=100"`
	Genre       *string `json:"genre"        validate:"omitempty,max=50"`
	IsPublished bool    `json:"is_published"`
}

func (r CreateStoryRequest) params() task.CreateStoryParams {
	return task.CreateStoryParams{
		Title:       r.Title,
		Content:     r.Content,
		Author:      r.Author,
		Genre:       r.Genre,
		IsPublished: r.IsPublished,
	}
}

// UpdateStoryRequest is the body of PUT /stories/{id}. Omitted fields are
// left unchanged; an explicit "genre": null clears the genre.
type UpdateStoryRequest struct {
	Title       *string `json:"title"        validate:"omitempty,min=1,max=200"`
	Content     *string `json:"content"      validate:"omitempty,min=1"`
	Author      *string `json:"author"       validate:"omitempty,min=1,max=100"`
	Genre       *string `json:"genre"        validate:"omitempty,max=50"`
	IsPublished *bool   `json:"is_published"`

	clearGenre bool
}

// UnmarshalJSON records whether genre was sent as null, which the pointer
// field alone cannot tell apart from an omitted genre.
func (r *UpdateStoryRequest) UnmarshalJSON(data []byte) error {
	type fields UpdateStoryRequest
	if err := json.Unmarshal(data, (*fields)(r)); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	genre, ok := raw["genre"]
	r.clearGenre = ok && bytes.Equal(bytes.TrimSpace(genre), []byte("null"))
	return nil
}

func (r UpdateStoryRequest) patch() domain.StoryPatch {
	return domain.StoryPatch{
		Title:       r.Title,
		Content:     r.Content,
		Author:      r.Author,
		Genre:       r.Genre,
		ClearGenre:  r.clearGenre,
		IsPublished: r.IsPublished,
	}
}

// GenerateRequest is the body of POST /llm/generate.
type GenerateRequest struct {
	Prompt      string   `json:"prompt"      validate:"required,min=10,max=2000"`
	Genre       string   `json:"genre"       validate:"max=50"`
	Length      string   `json:"length"      validate:"omitempty,oneof=short medium long"`
	Style       string   `json:"style"       validate:"max=100"`
	ModelName   string   `json:"model_name"`
	Temperature *float64 `json:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens"  validate:"omitempty,gte=100,lte=4096"`
}

func (r GenerateRequest) params() task.GenerateStoryParams {
	return task.GenerateStoryParams{
		Prompt:      r.Prompt,
		Genre:       orDefault(r.Genre, llm.DefaultGenre),
		Length:      orDefault(r.Length, llm.DefaultLength),
		Style:       orDefault(r.Style, llm.DefaultStyle),
		ModelName:   r.ModelName,
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// AnalyzeRequest is the body of POST /llm/analyze.
type AnalyzeRequest struct {
	Content      string `json:"content"       validate:"required,min=50,max=10000"`
	AnalysisType string `json:"analysis_type" validate:"omitempty,oneof=sentiment genre full"`
	ModelName    string `json:"model_name"`
}

func (r AnalyzeRequest) params() task.AnalyzeStoryParams {
	return task.AnalyzeStoryParams{
		Content:      r.Content,
		AnalysisType: orDefault(r.AnalysisType, llm.DefaultAnalysisType),
		ModelName:    r.ModelName,
	}
}

// SummarizeRequest is the body of POST /llm/summarize.
type SummarizeRequest struct {
	Content       string `json:"content"        validate:"required,min=100,max=20000"`
	SummaryLength string `json:"summary_length" validate:"omitempty,oneof=brief detailed"`
	Focus         string `json:"focus"          validate:"max=200"`
	ModelName     string `json:"model_name"`
}

func (r SummarizeRequest) params() task.SummarizeStoryParams {
	return task.SummarizeStoryParams{
		Content:       r.Content,
		SummaryLength: orDefault(r.SummaryLength, llm.DefaultSummaryLength),
		Focus:         orDefault(r.Focus, llm.DefaultFocus),
		ModelName:     r.ModelName,
	}
}

// ImproveRequest is the body of POST /llm/improve.
type ImproveRequest struct {
	Content         string `json:"content"          validate:"required,min=50,max=15000"`
	ImprovementType string `json:"improvement_type" validate:"omitempty,oneof=general grammar style"`
	FocusArea       string `json:"focus_area"       validate:"max=200"`
	TargetAudience  string `json:"target_audience"  validate:"max=200"`
	TargetStyle     string `json:"target_style"     validate:"max=200"`
	ModelName       string `json:"model_name"`
}

func (r ImproveRequest) params() task.ImproveStoryParams {
	return task.ImproveStoryParams{
		Content:         r.Content,
		ImprovementType: orDefault(r.ImprovementType, llm.DefaultImprovementType),
		FocusArea:       orDefault(r.FocusArea, llm.DefaultFocusArea),
		TargetAudience:  orDefault(r.TargetAudience, llm.DefaultTargetAudience),
		TargetStyle:     r.TargetStyle,
		ModelName:       r.ModelName,
	}
}

// TaskSubmitResponse is returned by every endpoint that dispatches a task.
type TaskSubmitResponse struct {
	TaskID        string     `json:"task_id"`
	Status        task.State `json:"status"`
	Message       string     `json:"message"`
	EstimatedTime int        `json:"estimated_time"`
}

// TaskResultResponse is the body of GET /tasks/{id}/result.
type TaskResultResponse struct {
	TaskID  string          `json:"task_id"`
	Result  json.RawMessage `json:"result"`
	Success bool            `json:"success"`
}

// TaskCancelResponse is the body of DELETE /tasks/{id}.
type TaskCancelResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message"`
}

// Estimated completion times in seconds, reported on submission.
const (
	estimateCreate    = 30
	estimateUpdate    = 20
	estimateDelete    = 15
	estimatePublish   = 10
	estimateAnalyze   = 45
	estimateSummarize = 30
	estimateImprove   = 90
	estimateGenerate  = 120
)

var generateEstimates = map[string]int{
	"short":  60,
	"medium": 120,
	"long":   300,
}

func generateEstimate(length string) int {
	if secs, ok := generateEstimates[length]; ok {
		return secs
	}
	return estimateGenerate
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
