package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/story-api/internal/config"
	"github.com/phrazzld/story-api/internal/llm"
	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

// contentGenerator is the part of genai.Models used by Client.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Client sends completion requests to Gemini.
type Client struct {
	models     contentGenerator
	timeout    time.Duration
	maxRetries uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ llm.Completer = (*Client)(nil)

// NewClient creates a Gemini client from cfg. An empty API key is an
// llm.ErrInvalidConfig error.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key is not configured", llm.ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", llm.ErrInvalidConfig, err)
	}

	return newClient(client.Models, cfg, logger), nil
}

func newClient(models contentGenerator, cfg config.LLMConfig, logger *slog.Logger) *Client {
	c := &Client{
		models:     models,
		timeout:    cfg.RequestTimeout,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     logger.With("component", "gemini"),
	}
	if c.timeout <= 0 {
		c.timeout = 60 * time.Second
	}
	if c.retryDelay <= 0 {
		c.retryDelay = time.Second
	}
	return c
}

// NewFactory returns an llm.ClientFactory that opens a new Client per call.
func NewFactory(cfg config.LLMConfig, logger *slog.Logger) llm.ClientFactory {
	return func(ctx context.Context) (llm.Completer, error) {
		return NewClient(ctx, cfg, logger)
	}
}

// Complete sends req to Gemini, retrying transient failures up to the
// configured retry count.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	temperature := float32(req.Temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}

	var completion *llm.Completion
	attempt := 0
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.models.GenerateContent(callCtx, req.Model, genai.Text(req.Prompt), genCfg)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			err = classifyError(err)
		} else {
			completion, err = completionFrom(resp, req.Model)
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, llm.ErrTransientFailure) {
			c.logger.WarnContext(ctx, "gemini call failed, retrying",
				"model", req.Model,
				"attempt", attempt,
				"error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "gemini call failed",
			"model", req.Model,
			"attempts", attempt,
			"error", err)
		return nil, err
	}

	return completion, nil
}
