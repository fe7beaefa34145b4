package logger

import (
	"time"

	"github.com/rs/zerolog"
)

// LogEventAdapter adapts zerolog events to the LogEvent interface, routing
// string and interface fields through the sanitizer.
type LogEventAdapter struct {
	event     *zerolog.Event
	sanitizer *Sanitizer
}

// Msg emits the event with the given message.
func (lea *LogEventAdapter) Msg(msg string) {
	lea.event.Msg(msg)
}

// Msgf emits the event with a formatted message.
func (lea *LogEventAdapter) Msgf(format string, args ...any) {
	lea.event.Msgf(format, args...)
}

// Err adds an error field to the event.
func (lea *LogEventAdapter) Err(err error) LogEvent {
	return &LogEventAdapter{event: lea.event.Err(err), sanitizer: lea.sanitizer}
}

// Str adds a string field, masking the value when the key is sensitive.
func (lea *LogEventAdapter) Str(key, value string) LogEvent {
	if lea.sanitizer != nil {
		value = lea.sanitizer.Value(key, value)
	}
	return &LogEventAdapter{event: lea.event.Str(key, value), sanitizer: lea.sanitizer}
}

// Int adds an integer field.
func (lea *LogEventAdapter) Int(key string, value int) LogEvent {
	return &LogEventAdapter{event: lea.event.Int(key, value), sanitizer: lea.sanitizer}
}

// Int64 adds an int64 field.
func (lea *LogEventAdapter) Int64(key string, value int64) LogEvent {
	return &LogEventAdapter{event: lea.event.Int64(key, value), sanitizer: lea.sanitizer}
}

// Uint64 adds a uint64 field.
func (lea *LogEventAdapter) Uint64(key string, value uint64) LogEvent {
	return &LogEventAdapter{event: lea.event.Uint64(key, value), sanitizer: lea.sanitizer}
}

// Dur adds a duration field.
func (lea *LogEventAdapter) Dur(key string, d time.Duration) LogEvent {
	return &LogEventAdapter{event: lea.event.Dur(key, d), sanitizer: lea.sanitizer}
}

// Interface adds an arbitrary field. Header maps are sanitized recursively.
func (lea *LogEventAdapter) Interface(key string, i any) LogEvent {
	if lea.sanitizer != nil {
		i = lea.sanitizer.Any(key, i)
	}
	return &LogEventAdapter{event: lea.event.Interface(key, i), sanitizer: lea.sanitizer}
}

// Bytes adds a byte-slice field.
func (lea *LogEventAdapter) Bytes(key string, val []byte) LogEvent {
	return &LogEventAdapter{event: lea.event.Bytes(key, val), sanitizer: lea.sanitizer}
}

// Info creates an info-level log event.
func (l *ZeroLogger) Info() LogEvent {
	return &LogEventAdapter{event: l.zlog.Info(), sanitizer: l.sanitizer}
}

// Error creates an error-level log event.
func (l *ZeroLogger) Error() LogEvent {
	return &LogEventAdapter{event: l.zlog.Error(), sanitizer: l.sanitizer}
}

// Debug creates a debug-level log event.
func (l *ZeroLogger) Debug() LogEvent {
	return &LogEventAdapter{event: l.zlog.Debug(), sanitizer: l.sanitizer}
}

// Warn creates a warning-level log event.
func (l *ZeroLogger) Warn() LogEvent {
	return &LogEventAdapter{event: l.zlog.Warn(), sanitizer: l.sanitizer}
}

// Fatal creates a fatal-level log event.
func (l *ZeroLogger) Fatal() LogEvent {
	return &LogEventAdapter{event: l.zlog.Fatal(), sanitizer: l.sanitizer}
}
