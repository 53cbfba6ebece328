package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/story-api/internal/llm"
	"google.golang.org/genai"
)

// classifyError wraps a provider error with the llm sentinel matching its
// retry class.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code == http.StatusRequestTimeout,
			apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %d %s: %s", llm.ErrTransientFailure, apiErr.Code, apiErr.Status, apiErr.Message)
		case apiErr.Code >= http.StatusBadRequest:
			return fmt.Errorf("%w: %d %s: %s", llm.ErrRequestRejected, apiErr.Code, apiErr.Status, apiErr.Message)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out", llm.ErrTransientFailure)
	}
	// Network and other transport errors.
	return fmt.Errorf("%w: %v", llm.ErrTransientFailure, err)
}

// completionFrom extracts the text of the first candidate.
func completionFrom(resp *genai.GenerateContentResponse, model string) (*llm.Completion, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: nil response", llm.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", llm.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates in response", llm.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return nil, fmt.Errorf("%w: response blocked by safety filters", llm.ErrContentBlocked)
	}
	if candidate.Content == nil {
		return nil, fmt.Errorf("%w: empty content in response", llm.ErrInvalidResponse)
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, fmt.Errorf("%w: no text in response", llm.ErrInvalidResponse)
	}

	c := &llm.Completion{Text: sb.String(), Model: model}
	if resp.ModelVersion != "" {
		c.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		c.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return c, nil
}
