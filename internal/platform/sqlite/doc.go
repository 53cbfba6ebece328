// Package sqlite provides a pure-Go SQLite implementation of the story store.
// It backs local mode and the integration tests; PostgreSQL remains the
// production database.
package sqlite
