// Package gemini implements llm.Completer on top of Google's Gemini API.
//
// Provider failures are classified before they leave the package: rate
// limits, server errors and timeouts wrap llm.ErrTransientFailure and are
// retried with exponential backoff; safety blocks wrap llm.ErrContentBlocked;
// other 4xx responses wrap llm.ErrRequestRejected. Only transient failures
// are retried here.
package gemini
