package llm

import "time"

// GenerateResult is the outcome of a story generation task.
type GenerateResult struct {
	Story    string           `json:"story"`
	Metadata GenerateMetadata `json:"metadata"`
	Success  bool             `json:"success"`
}

type GenerateMetadata struct {
	Genre          string    `json:"genre"`
	Length         string    `json:"length"`
	Style          string    `json:"style"`
	ModelUsed      string    `json:"model_used"`
	GenerationTime time.Time `json:"generation_time"`
	WordCount      int       `json:"word_count"`
}

// AnalyzeResult is the outcome of a story analysis task.
type AnalyzeResult struct {
	Analysis     string          `json:"analysis"`
	AnalysisType string          `json:"analysis_type"`
	Metadata     AnalyzeMetadata `json:"metadata"`
	Success      bool            `json:"success"`
}

type AnalyzeMetadata struct {
	ContentLength int       `json:"content_length"`
	WordCount     int       `json:"word_count"`
	ModelUsed     string    `json:"model_used"`
	AnalysisTime  time.Time `json:"analysis_time"`
}

// SummarizeResult is the outcome of a summarization task.
type SummarizeResult struct {
	Summary  string            `json:"summary"`
	Metadata SummarizeMetadata `json:"metadata"`
	Success  bool              `json:"success"`
}

type SummarizeMetadata struct {
	OriginalLength    int       `json:"original_length"`
	OriginalWordCount int       `json:"original_word_count"`
	SummaryWordCount  int       `json:"summary_word_count"`
	CompressionRatio  float64   `json:"compression_ratio"`
	SummaryLength     string    `json:"summary_length"`
	Focus             string    `json:"focus"`
	ModelUsed         string    `json:"model_used"`
	SummaryTime       time.Time `json:"summary_time"`
}

// ImproveResult is the outcome of a story improvement task.
type ImproveResult struct {
	ImprovedStory string          `json:"improved_story"`
	OriginalStory string          `json:"original_story"`
	Metadata      ImproveMetadata `json:"metadata"`
	Success       bool            `json:"success"`
}

type ImproveMetadata struct {
	ImprovementType   string    `json:"improvement_type"`
	FocusArea         string    `json:"focus_area"`
	TargetAudience    string    `json:"target_audience"`
	OriginalWordCount int       `json:"original_word_count"`
	ImprovedWordCount int       `json:"improved_word_count"`
	ModelUsed         string    `json:"model_used"`
	ImprovementTime   time.Time `json:"improvement_time"`
}
