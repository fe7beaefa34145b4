package logger

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ZeroLogger implements Logger on top of zerolog. Outbound request logging can
// carry credentials in headers and URLs, so every string field passes through
// the attached Sanitizer before it reaches the stream.
type ZeroLogger struct {
	zlog      *zerolog.Logger
	sanitizer *Sanitizer
}

var _ Logger = (*ZeroLogger)(nil)

var callerMarshalOnce sync.Once

// New creates a ZeroLogger at the given level. If pretty is true, output is
// formatted for human readability instead of JSON.
func New(level string, pretty bool) *ZeroLogger {
	return NewWithSanitizer(level, pretty, NewSanitizer(nil))
}

// NewWithSanitizer creates a ZeroLogger with a custom sanitizer configuration.
func NewWithSanitizer(level string, pretty bool, sanitizer *Sanitizer) *ZeroLogger {
	callerMarshalOnce.Do(func() {
		zerolog.CallerMarshalFunc = func(_ uintptr, file string, line int) string {
			base := filepath.Base(file)
			parent := filepath.Base(filepath.Dir(file))
			if parent != "." && parent != "" {
				return parent + "/" + base + ":" + strconv.Itoa(line)
			}
			return base + ":" + strconv.Itoa(line)
		}
	})

	var l zerolog.Logger

	if pretty {
		l = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	} else {
		l = zerolog.New(os.Stdout).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	}

	zLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zLevel = zerolog.InfoLevel
	}
	l = l.Level(zLevel)

	if sanitizer == nil {
		sanitizer = NewSanitizer(nil)
	}

	return &ZeroLogger{zlog: &l, sanitizer: sanitizer}
}

// NewNop returns a logger that discards everything. The engine uses it when no
// logger is configured so call sites never need nil checks.
func NewNop() *ZeroLogger {
	l := zerolog.Nop()
	return &ZeroLogger{zlog: &l, sanitizer: NewSanitizer(nil)}
}

// WithContext returns a logger bound to the zerolog instance carried by ctx,
// when one is present; otherwise it returns the receiver unchanged.
func (l *ZeroLogger) WithContext(ctx any) Logger {
	if c, ok := ctx.(context.Context); ok {
		zl := zerolog.Ctx(c)
		if zl == nil || zl.GetLevel() == zerolog.Disabled {
			return l
		}
		return &ZeroLogger{zlog: zl, sanitizer: l.sanitizer}
	}
	return l
}

// WithFields returns a logger with the given fields attached to every entry.
// Field values are sanitized before they are bound.
func (l *ZeroLogger) WithFields(fields map[string]any) Logger {
	if l.sanitizer != nil {
		fields = l.sanitizer.Fields(fields)
	}
	log := l.zlog.With().Fields(fields).Logger()
	return &ZeroLogger{zlog: &log, sanitizer: l.sanitizer}
}
