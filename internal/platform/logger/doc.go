// Package logger provides structured logging functionality for the application.
//
// It builds JSON log/slog loggers with configurable levels and carries
// request- or task-scoped loggers through context.Context.
package logger
