// Package logger provides structured logging for the service.
//
// It builds on log/slog to emit JSON log lines at a configurable level,
// and carries request-scoped loggers through context.Context.
package logger
