package llm

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/phrazzld/story-api/internal/task"
)

// Allowed values of the enum-like operation parameters.
var (
	Lengths          = []string{"short", "medium", "long"}
	AnalysisTypes    = []string{"sentiment", "genre", "full"}
	SummaryLengths   = []string{"brief", "detailed"}
	ImprovementTypes = []string{"general", "grammar", "style"}
)

// Parameter defaults applied when a field is empty.
const (
	DefaultGenre            = "fiction"
	DefaultLength           = "short"
	DefaultStyle            = "engaging"
	DefaultAnalysisType     = "full"
	DefaultSummaryLength    = "brief"
	DefaultFocus            = "main plot and characters"
	DefaultImprovementType  = "general"
	DefaultFocusArea        = "overall quality"
	DefaultTargetAudience   = "general readers"
	DefaultTargetStyle      = "more engaging"
	defaultPreserveElements = "plot and characters"
)

// Recorder receives one event per model call.
type Recorder interface {
	LLMRequest(model string, tokens int, err error)
}

type nopRecorder struct{}

func (nopRecorder) LLMRequest(string, int, error) {}

// Defaults are the sampling settings used when a request does not set them.
type Defaults struct {
	Temperature float64
	MaxTokens   int
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder reports model calls to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithDefaults overrides the sampling defaults.
func WithDefaults(d Defaults) Option {
	return func(s *Service) { s.defaults = d }
}

// Service runs the story operations against a language model.
type Service struct {
	factory  ClientFactory
	catalog  *Catalog
	prompts  *Prompts
	usage    *Usage
	recorder Recorder
	defaults Defaults
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. It panics if factory, catalog or prompts is
// nil.
func NewService(factory ClientFactory, catalog *Catalog, prompts *Prompts, logger *slog.Logger, opts ...Option) *Service {
	if factory == nil || catalog == nil || prompts == nil {
		panic("llm.NewService: factory, catalog and prompts are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		factory:  factory,
		catalog:  catalog,
		prompts:  prompts,
		usage:    NewUsage(),
		recorder: nopRecorder{},
		defaults: Defaults{Temperature: 0.7, MaxTokens: 2048},
		logger:   logger.With("component", "llm_service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the model catalog.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Usage returns this process's usage counters.
func (s *Service) Usage() UsageStats { return s.usage.Snapshot() }

// Generate writes a new story from a prompt.
func (s *Service) Generate(ctx context.Context, p task.GenerateStoryParams) (*GenerateResult, error) {
	genre := orDefault(p.Genre, DefaultGenre)
	length := orDefault(p.Length, DefaultLength)
	style := orDefault(p.Style, DefaultStyle)

	if err := oneOf("length", length, Lengths); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt cannot be empty", ErrInvalidParameter)
	}
	temperature, maxTokens, err := s.sampling(p.Temperature, p.MaxTokens)
	if err != nil {
		return nil, err
	}
	model, err := s.catalog.Resolve(OpGeneration, p.ModelName)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Render(PromptStoryGeneration, map[string]string{
		"genre":             genre,
		"theme":             p.Prompt,
		"length":            length,
		"style":             style,
		"additional_params": "none",
	})
	if err != nil {
		return nil, err
	}

	story, err := s.complete(ctx, "generate_story", Request{
		Model:       model,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &GenerateResult{
		Story: story,
		Metadata: GenerateMetadata{
			Genre:          genre,
			Length:         length,
			Style:          style,
			ModelUsed:      model,
			GenerationTime: s.now().UTC(),
			WordCount:      wordCount(story),
		},
		Success: true,
	}, nil
}

// Analyze runs a sentiment, genre or full analysis of a story.
func (s *Service) Analyze(ctx context.Context, p task.AnalyzeStoryParams) (*AnalyzeResult, error) {
	analysisType := orDefault(p.AnalysisType, DefaultAnalysisType)
	if err := oneOf("analysis_type", analysisType, AnalysisTypes); err != nil {
		return nil, err
	}
	model, err := s.catalog.Resolve(OpAnalysis, p.ModelName)
	if err != nil {
		return nil, err
	}

	name := PromptStoryAnalysis
	switch analysisType {
	case "sentiment":
		name = PromptSentimentAnalysis
	case "genre":
		name = PromptGenreClassification
	}

	prompt, err := s.prompts.Render(name, map[string]string{"content": p.Content})
	if err != nil {
		return nil, err
	}

	analysis, err := s.complete(ctx, "analyze_story", s.request(model, prompt))
	if err != nil {
		return nil, err
	}

	return &AnalyzeResult{
		Analysis:     analysis,
		AnalysisType: analysisType,
		Metadata: AnalyzeMetadata{
			ContentLength: len(p.Content),
			WordCount:     wordCount(p.Content),
			ModelUsed:     model,
			AnalysisTime:  s.now().UTC(),
		},
		Success: true,
	}, nil
}

// Summarize condenses a story.
func (s *Service) Summarize(ctx context.Context, p task.SummarizeStoryParams) (*SummarizeResult, error) {
	summaryLength := orDefault(p.SummaryLength, DefaultSummaryLength)
	focus := orDefault(p.Focus, DefaultFocus)
	if err := oneOf("summary_length", summaryLength, SummaryLengths); err != nil {
		return nil, err
	}
	model, err := s.catalog.Resolve(OpSummarization, p.ModelName)
	if err != nil {
		return nil, err
	}

	prompt, err := s.prompts.Render(PromptStorySummary, map[string]string{
		"content":        p.Content,
		"summary_length": summaryLength,
		"focus":          focus,
	})
	if err != nil {
		return nil, err
	}

	summary, err := s.complete(ctx, "summarize_story", s.request(model, prompt))
	if err != nil {
		return nil, err
	}

	return &SummarizeResult{
		Summary: summary,
		Metadata: SummarizeMetadata{
			OriginalLength:    len(p.Content),
			OriginalWordCount: wordCount(p.Content),
			SummaryWordCount:  wordCount(summary),
			CompressionRatio:  compressionRatio(summary, p.Content),
			SummaryLength:     summaryLength,
			Focus:             focus,
			ModelUsed:         model,
			SummaryTime:       s.now().UTC(),
		},
		Success: true,
	}, nil
}

// Improve rewrites a story for general quality, grammar or style.
func (s *Service) Improve(ctx context.Context, p task.ImproveStoryParams) (*ImproveResult, error) {
	improvementType := orDefault(p.ImprovementType, DefaultImprovementType)
	focusArea := orDefault(p.FocusArea, DefaultFocusArea)
	audience := orDefault(p.TargetAudience, DefaultTargetAudience)
	if err := oneOf("improvement_type", improvementType, ImprovementTypes); err != nil {
		return nil, err
	}
	model, err := s.catalog.Resolve(OpImprovement, p.ModelName)
	if err != nil {
		return nil, err
	}

	var prompt string
	switch improvementType {
	case "grammar":
		prompt, err = s.prompts.Render(PromptGrammarCorrection, map[string]string{"content": p.Content})
	case "style":
		prompt, err = s.prompts.Render(PromptStyleTransformation, map[string]string{
			"content":           p.Content,
			"target_style":      orDefault(p.TargetStyle, DefaultTargetStyle),
			"preserve_elements": defaultPreserveElements,
		})
	default:
		prompt, err = s.prompts.Render(PromptStoryImprovement, map[string]string{
			"content":         p.Content,
			"focus_area":      focusArea,
			"target_audience": audience,
		})
	}
	if err != nil {
		return nil, err
	}

	improved, err := s.complete(ctx, "improve_story", s.request(model, prompt))
	if err != nil {
		return nil, err
	}

	return &ImproveResult{
		ImprovedStory: improved,
		OriginalStory: p.Content,
		Metadata: ImproveMetadata{
			ImprovementType:   improvementType,
			FocusArea:         focusArea,
			TargetAudience:    audience,
			OriginalWordCount: wordCount(p.Content),
			ImprovedWordCount: wordCount(improved),
			ModelUsed:         model,
			ImprovementTime:   s.now().UTC(),
		},
		Success: true,
	}, nil
}

func (s *Service) request(model, prompt string) Request {
	return Request{
		Model:       model,
		Prompt:      prompt,
		Temperature: s.defaults.Temperature,
		MaxTokens:   s.defaults.MaxTokens,
	}
}

func (s *Service) sampling(temperature *float64, maxTokens *int) (float64, int, error) {
	t, m := s.defaults.Temperature, s.defaults.MaxTokens
	if temperature != nil {
		if *temperature < 0 || *temperature > 2 {
			return 0, 0, fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidParameter)
		}
		t = *temperature
	}
	if maxTokens != nil {
		if *maxTokens < 100 || *maxTokens > 4096 {
			return 0, 0, fmt.Errorf("%w: max_tokens must be between 100 and 4096", ErrInvalidParameter)
		}
		m = *maxTokens
	}
	return t, m, nil
}

// complete opens a client, sends req and records usage.
func (s *Service) complete(ctx context.Context, operation string, req Request) (string, error) {
	log := s.logger.With("operation", operation, "model", req.Model)
	log.InfoContext(ctx, "llm operation started", "prompt_length", len(req.Prompt))

	client, err := s.factory(ctx)
	if err != nil {
		s.record(req.Model, 0, err)
		log.ErrorContext(ctx, "failed to open model client", "error", err)
		return "", err
	}

	start := s.now()
	comp, err := client.Complete(ctx, req)
	if err == nil && strings.TrimSpace(comp.Text) == "" {
		err = fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	if err != nil {
		s.record(req.Model, 0, err)
		log.ErrorContext(ctx, "llm operation failed", "error", err)
		return "", err
	}

	s.record(req.Model, comp.TotalTokens, nil)
	log.InfoContext(ctx, "llm operation completed",
		"tokens", comp.TotalTokens,
		"duration_ms", s.now().Sub(start).Milliseconds())
	return strings.TrimSpace(comp.Text), nil
}

func (s *Service) record(model string, tokens int, err error) {
	s.usage.Record(tokens, err)
	s.recorder.LLMRequest(model, tokens, err)
}

func oneOf(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q",
		ErrInvalidParameter, field, strings.Join(allowed, ", "), value)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func compressionRatio(summary, content string) float64 {
	if content == "" || summary == "" {
		return 0
	}
	return float64(len(summary)) / float64(len(content))
}
