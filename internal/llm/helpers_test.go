package llm

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/story-api/internal/config"
	"github.com/stretchr/testify/require"
)

type mockCompleter struct {
	mu         sync.Mutex
	CompleteFn func(ctx context.Context, req Request) (*Completion, error)
	Requests   []Request
}

func (m *mockCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, req)
	}
	return &Completion{Text: "Once upon a time there was a test.", Model: req.Model, TotalTokens: 42}, nil
}

func (m *mockCompleter) calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.Requests...)
}

type mockRecorder struct {
	mu     sync.Mutex
	models []string
	errs   []error
}

func (r *mockRecorder) LLMRequest(model string, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = append(r.models, model)
	r.errs = append(r.errs, err)
}

func testLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey: "test-key",
		DefaultModel: "gemini-2.0-flash",
		Models:       []string{"gemini-2.0-flash", "gemini-2.5-pro"},
		TaskModels:   map[string]string{OpAnalysis: "gemini-2.5-pro"},
		Temperature:  0.7,
		MaxTokens:    2048,
	}
}

func newTestService(t *testing.T, completer Completer, opts ...Option) *Service {
	t.Helper()

	catalog, err := NewCatalog(testLLMConfig())
	require.NoError(t, err)
	prompts, err := DefaultPrompts()
	require.NoError(t, err)

	factory := func(context.Context) (Completer, error) { return completer, nil }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewService(factory, catalog, prompts, logger, opts...)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}
