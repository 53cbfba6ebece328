// Package llm implements the story operations backed by a language model:
// generation, analysis, summarization and improvement.
//
// Each operation validates its parameters, renders a prompt from the
// embedded template set, opens a model client through the injected
// ClientFactory and wraps the completion in a result with metadata. The
// package knows nothing about a specific provider; see
// internal/platform/gemini for the Gemini client.
package llm
