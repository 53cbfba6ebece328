// Package domain contains the core business entities of the story API and
// the rules that keep them valid. It has no knowledge of storage, transport
// or the task queue.
package domain
