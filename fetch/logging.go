package fetch

import (
	"net/http"
	"strconv"
)

// logRequest emits the per-request info line and, when payload logging is
// enabled, a debug line with sanitized headers and a truncated body preview.
func (c *client) logRequest(req *http.Request, body []byte, traceID string) {
	event := c.logger.Info().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", traceID)

	if len(req.Header) > 0 {
		event = event.Int("header_count", len(req.Header))
	}
	if len(body) > 0 {
		event = event.Int("body_size", len(body))
	}
	event.Msg("HTTP client request")

	if !c.config.LogPayloads {
		return
	}

	preview, truncated := c.payloadPreview(body)
	debug := c.logger.Debug().
		Str("direction", "outbound").
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Str("request_id", traceID).
		Interface("headers", c.sanitizer.Headers(req.Header))
	if len(body) > 0 {
		debug = debug.
			Int("body_size", len(body)).
			Str("body_truncated", strconv.FormatBool(truncated)).
			Bytes("body_preview", preview)
	}
	debug.Msg("HTTP client request")
}

// logResponse emits the per-response info line. The wrapper's body is lazy,
// so size comes from the declared content length and payload logging is
// limited to sanitized headers.
func (c *client) logResponse(resp *Response, traceID string) {
	event := c.logger.Info().
		Str("direction", "inbound").
		Int("status", resp.StatusCode()).
		Dur("elapsed", resp.Stats.ElapsedTime).
		Int("attempts", resp.Stats.Attempts).
		Int64("call_count", resp.Stats.CallCount).
		Str("request_id", traceID)

	if length := resp.ContentLength(); length > 0 {
		event = event.Int64("body_size", length)
	}
	event.Msg("HTTP client response")

	if !c.config.LogPayloads {
		return
	}

	c.logger.Debug().
		Str("direction", "inbound").
		Int("status", resp.StatusCode()).
		Str("request_id", traceID).
		Interface("headers", c.sanitizer.Headers(resp.Header())).
		Msg("HTTP client response")
}

// logFailure emits one error line for the settled failure of a request.
func (c *client) logFailure(method, url, traceID string, err error) {
	c.logger.Error().
		Str("direction", "outbound").
		Str("method", method).
		Str("url", url).
		Str("request_id", traceID).
		Err(err).
		Msg("HTTP client request failed")
}

// payloadPreview truncates a body to the configured preview cap.
func (c *client) payloadPreview(body []byte) ([]byte, bool) {
	limit := c.config.MaxPayloadLogBytes
	if limit <= 0 {
		limit = DefaultMaxPayloadLogBytes
	}
	if len(body) > limit {
		return body[:limit], true
	}
	return body, false
}
