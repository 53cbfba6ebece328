// Package service holds the story use cases that task handlers execute.
//
// StoryService runs each story mutation in its own transaction and returns
// a JSON-ready snapshot. RegisterHandlers binds those mutations and the LLM
// operations to the task registry and translates their errors into retry
// classes.
package service
