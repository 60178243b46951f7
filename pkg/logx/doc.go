// Package logx configures memebot's structured logging.
//
// Logger wraps zerolog: readable console output, JSON file output and an
// optional Telegram sink that forwards warnings to the operators' group
// (min-level plus rate limit). Outputs can be swapped at runtime via
// Service.Apply on config reload.
package logx
