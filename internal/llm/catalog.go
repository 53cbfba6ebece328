package llm

import (
	"fmt"
	"slices"

	"github.com/phrazzld/story-api/internal/config"
)

// Operation names used for per-operation model assignment.
const (
	OpGeneration    = "story_generation"
	OpAnalysis      = "analysis"
	OpSummarization = "summarization"
	OpImprovement   = "improvement"
)

// Catalog knows which models are configured and which one each operation
// uses by default.
type Catalog struct {
	models       []string
	defaultModel string
	taskModels   map[string]string
	hasKey       bool
}

// NewCatalog builds a catalog from the LLM config. The default model and
// every per-operation model must appear in the model list.
func NewCatalog(cfg config.LLMConfig) (*Catalog, error) {
	c := &Catalog{
		models:       slices.Clone(cfg.Models),
		defaultModel: cfg.DefaultModel,
		taskModels:   make(map[string]string, len(cfg.TaskModels)),
		hasKey:       cfg.GeminiAPIKey != "",
	}

	if !c.known(c.defaultModel) {
		return nil, fmt.Errorf("%w: default model %q is not in the model list", ErrInvalidConfig, c.defaultModel)
	}
	for op, model := range cfg.TaskModels {
		if !c.known(model) {
			return nil, fmt.Errorf("%w: model %q for %s is not in the model list", ErrInvalidConfig, model, op)
		}
		c.taskModels[op] = model
	}
	return c, nil
}

func (c *Catalog) known(model string) bool {
	return slices.Contains(c.models, model)
}

// Models returns the configured model names.
func (c *Catalog) Models() []string { return slices.Clone(c.models) }

// DefaultModel returns the fallback model.
func (c *Catalog) DefaultModel() string { return c.defaultModel }

// TaskModel returns the model assigned to op, or the default model.
func (c *Catalog) TaskModel(op string) string {
	if m, ok := c.taskModels[op]; ok {
		return m
	}
	return c.defaultModel
}

// Resolve picks the model for op. A non-empty override must name a
// configured model.
func (c *Catalog) Resolve(op, override string) (string, error) {
	if override == "" {
		return c.TaskModel(op), nil
	}
	if !c.known(override) {
		return "", fmt.Errorf("%w: unknown model %q", ErrInvalidParameter, override)
	}
	return override, nil
}

// Available reports each model's availability. Models need an API key.
func (c *Catalog) Available() map[string]bool {
	out := make(map[string]bool, len(c.models))
	for _, m := range c.models {
		out[m] = c.hasKey
	}
	return out
}
