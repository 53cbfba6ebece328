// Package postgres provides the PostgreSQL implementation of store.StoryStore
// and maps driver errors onto the store package's error values.
package postgres
