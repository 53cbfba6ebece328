package llm

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt template names.
const (
	PromptStoryGeneration     = "story_generation"
	PromptSentimentAnalysis   = "sentiment_analysis"
	PromptGenreClassification = "genre_classification"
	PromptStoryAnalysis       = "story_analysis"
	PromptStorySummary        = "story_summary"
	PromptStoryImprovement    = "story_improvement"
	PromptGrammarCorrection   = "grammar_correction"
	PromptStyleTransformation = "style_transformation"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts is a parsed set of named prompt templates.
type Prompts struct {
	templates map[string]*template.Template
}

// DefaultPrompts parses the embedded template set.
func DefaultPrompts() (*Prompts, error) {
	return ParsePrompts(defaultPrompts)
}

// ParsePrompts parses a YAML document mapping template names to
// text/template sources. Missing keys fail at render time.
func ParsePrompts(data []byte) (*Prompts, error) {
	var sources map[string]string
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no prompt templates defined", ErrInvalidConfig)
	}

	p := &Prompts{templates: make(map[string]*template.Template, len(sources))}
	for name, src := range sources {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
		if err != nil {
			return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// Names returns the sorted template names.
func (p *Prompts) Names() []string {
	names := make([]string, 0, len(p.templates))
	for name := range p.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render executes the named template with data.
func (p *Prompts) Render(name string, data map[string]string) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown prompt template %q", ErrInvalidConfig, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
