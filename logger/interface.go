// Package logger defines the structured logging contract used by the request
// engine and provides a zerolog-backed implementation of it.
package logger

import "time"

// Logger is the structured logging contract the engine depends on. Callers may
// supply their own implementation; New returns the zerolog-backed default.
type Logger interface {
	Info() LogEvent
	Error() LogEvent
	Debug() LogEvent
	Warn() LogEvent
	Fatal() LogEvent
	WithContext(ctx any) Logger
	WithFields(fields map[string]any) Logger
}

// LogEvent is a single in-flight log entry. Field methods return the event so
// calls chain; Msg or Msgf terminates the event and emits it.
type LogEvent interface {
	Msg(msg string)
	Msgf(format string, args ...any)
	Err(err error) LogEvent
	Str(key, value string) LogEvent
	Int(key string, value int) LogEvent
	Int64(key string, value int64) LogEvent
	Uint64(key string, value uint64) LogEvent
	Dur(key string, d time.Duration) LogEvent
	Interface(key string, i any) LogEvent
	Bytes(key string, val []byte) LogEvent
}
