package logger

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultMaskValue replaces sensitive values in log output.
	DefaultMaskValue = "***"
)

// SanitizerConfig controls which keys are considered sensitive and what the
// replacement value looks like.
type SanitizerConfig struct {
	// SensitiveKeys are matched as case-insensitive substrings of field and
	// header names.
	SensitiveKeys []string
	// MaskValue replaces matched values (default: "***").
	MaskValue string
}

// DefaultSanitizerConfig covers the credentials that commonly travel on
// outbound HTTP requests: auth headers, cookies, API keys and tokens.
func DefaultSanitizerConfig() *SanitizerConfig {
	return &SanitizerConfig{
		SensitiveKeys: []string{
			"authorization", "proxy-authorization",
			"cookie", "set-cookie",
			"password", "passwd", "pwd",
			"secret", "api_key", "apikey", "api-key",
			"token", "access_token", "refresh_token",
			"credential", "credentials",
			"session",
		},
		MaskValue: DefaultMaskValue,
	}
}

// Sanitizer masks credential material before it reaches the log stream. It is
// applied to string fields, header maps and URLs by the logging adapter.
type Sanitizer struct {
	config *SanitizerConfig
}

// NewSanitizer creates a sanitizer; a nil config selects the default.
func NewSanitizer(config *SanitizerConfig) *Sanitizer {
	if config == nil {
		config = DefaultSanitizerConfig()
	}
	if config.MaskValue == "" {
		config.MaskValue = DefaultMaskValue
	}
	return &Sanitizer{config: config}
}

// Value masks value when key names something sensitive. URL-shaped values keep
// their structure with only the userinfo password replaced.
func (s *Sanitizer) Value(key, value string) string {
	if s.sensitive(key) {
		return s.mask(value)
	}
	if isURL(value) {
		return s.URL(value)
	}
	return value
}

// Any sanitizes the field shapes the engine logs: http.Header, header-like
// string maps and generic field maps. Other values pass through unchanged.
func (s *Sanitizer) Any(key string, value any) any {
	switch v := value.(type) {
	case http.Header:
		return s.Headers(v)
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, val := range v {
			out[k] = s.Value(k, val)
		}
		return out
	case map[string]any:
		return s.Fields(v)
	case string:
		return s.Value(key, v)
	default:
		return value
	}
}

// Headers flattens an http.Header into a loggable map with sensitive values
// masked. Multi-valued headers are joined the way the wire renders them.
func (s *Sanitizer) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		joined := strings.Join(values, ", ")
		if s.sensitive(name) {
			joined = s.config.MaskValue
		}
		out[name] = joined
	}
	return out
}

// Fields sanitizes a generic field map, recursing one level into nested maps.
func (s *Sanitizer) Fields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if s.sensitive(k) {
			out[k] = s.config.MaskValue
			continue
		}
		out[k] = s.Any(k, v)
	}
	return out
}

// URL masks the userinfo password and sensitive query parameter values while
// preserving the rest of the URL's structure.
func (s *Sanitizer) URL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return s.config.MaskValue
	}

	changed := false
	if parsed.User != nil {
		if _, hasPassword := parsed.User.Password(); hasPassword {
			parsed.User = url.UserPassword(parsed.User.Username(), s.config.MaskValue)
			changed = true
		}
	}

	query := parsed.Query()
	for name := range query {
		if s.sensitive(name) {
			query[name] = []string{s.config.MaskValue}
			changed = true
		}
	}
	if changed {
		parsed.RawQuery = query.Encode()
		return parsed.String()
	}
	return raw
}

func (s *Sanitizer) sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, sensitive := range s.config.SensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}

func (s *Sanitizer) mask(value string) string {
	if value == "" {
		return value
	}
	if isURL(value) {
		return s.URL(value)
	}
	return s.config.MaskValue
}

func isURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
