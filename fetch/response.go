package fetch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Stats contains request execution statistics
type Stats struct {
	// ElapsedTime is the total wall time across all attempts.
	ElapsedTime time.Duration
	// Attempts is the number of attempts performed, including the first.
	Attempts int
	// CallCount is the sequence number of this request on its client.
	CallCount int64
}

// bodyState tracks which materialization, if any, consumed the body. Once a
// state other than bodyUnread is reached the only legal operation is repeating
// the same materialization.
type bodyState int

const (
	bodyUnread bodyState = iota
	bodyText
	bodyJSON
	bodyBytes
	bodyStream
)

func (s bodyState) String() string {
	switch s {
	case bodyText:
		return "text"
	case bodyJSON:
		return "json"
	case bodyBytes:
		return "bytes"
	case bodyStream:
		return "stream"
	default:
		return "unread"
	}
}

// Response wraps exactly one raw HTTP response (or a synthetic response built
// by an interceptor). The body is materialized lazily through one of Text,
// JSON, Bytes or Stream; the first successful materialization fixes the
// format, repeat calls of the same format hit the cache, and any other format
// fails with a body-already-consumed parse error.
type Response struct {
	// Stats is populated by the executor once the request settles.
	Stats Stats

	raw    *http.Response
	method string
	url    string

	graphQL      bool
	graphQLRaise bool

	mu    sync.Mutex
	state bodyState
	cache []byte
}

// NewResponse builds a synthetic response, typically from a request
// interceptor that short-circuits the transport or an error interceptor that
// recovers a failed attempt. A nil header is permitted.
func NewResponse(statusCode int, header http.Header, body []byte) *Response {
	if header == nil {
		header = make(http.Header)
	}
	raw := &http.Response{
		StatusCode:    statusCode,
		Status:        fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
	return &Response{raw: raw}
}

// NewJSONResponse builds a synthetic response with a JSON body and content type.
func NewJSONResponse(statusCode int, v any) (*Response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, NewParseError("failed to encode response body", statusCode, err)
	}
	header := make(http.Header)
	header.Set("Content-Type", "application/json")
	return NewResponse(statusCode, header, payload), nil
}

// wrapResponse adopts a raw transport response.
func wrapResponse(raw *http.Response, method, url string) *Response {
	return &Response{raw: raw, method: method, url: url}
}

// StatusCode returns the HTTP status code, 0 when the response carries none.
func (r *Response) StatusCode() int {
	if r.raw == nil {
		return 0
	}
	return r.raw.StatusCode
}

// Status returns the status line, e.g. "200 OK".
func (r *Response) Status() string {
	if r.raw == nil {
		return ""
	}
	return r.raw.Status
}

// Header returns the response headers.
func (r *Response) Header() http.Header {
	if r.raw == nil {
		return nil
	}
	return r.raw.Header
}

// Ok reports whether the status is in the 2xx range.
func (r *Response) Ok() bool {
	return IsSuccessStatus(r.StatusCode())
}

// Method returns the method of the originating request, when known.
func (r *Response) Method() string { return r.method }

// URL returns the URL of the originating request, when known.
func (r *Response) URL() string { return r.url }

// ContentLength returns the declared body length, -1 when unknown.
func (r *Response) ContentLength() int64 {
	if r.raw == nil {
		return -1
	}
	return r.raw.ContentLength
}

// Text materializes the body as a string. The first call reads and caches the
// payload; repeat calls return the cached value.
func (r *Response) Text() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case bodyText:
		return string(r.cache), nil
	case bodyUnread:
		payload, err := r.readAll()
		if err != nil {
			return "", err
		}
		r.cache = payload
		r.state = bodyText
		return string(payload), nil
	default:
		return "", r.consumedError()
	}
}

// Bytes materializes the body as raw bytes. The first call reads and caches
// the payload; repeat calls return the cached slice.
func (r *Response) Bytes() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case bodyBytes:
		return r.cache, nil
	case bodyUnread:
		payload, err := r.readAll()
		if err != nil {
			return nil, err
		}
		r.cache = payload
		r.state = bodyBytes
		return payload, nil
	default:
		return nil, r.consumedError()
	}
}

// JSON materializes the body as JSON and decodes it into v. The raw payload
// is cached on first read, so repeat calls decode the same bytes. In GraphQL
// mode a non-empty top-level "errors" array raises a parse error instead,
// unless the request opted out of raising.
func (r *Response) JSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case bodyJSON:
		return r.decodeJSON(v)
	case bodyUnread:
		payload, err := r.readAll()
		if err != nil {
			return err
		}
		if !json.Valid(payload) {
			err := NewParseError("response body is not valid JSON", r.StatusCode(), nil)
			attachRequestContext(err, r.method, r.url)
			return err
		}
		r.cache = payload
		r.state = bodyJSON
		return r.decodeJSON(v)
	default:
		return r.consumedError()
	}
}

// Stream hands out the raw body stream. Only legal while the body is unread;
// once handed out, every further materialization (including Stream itself)
// fails with a body-already-consumed error since the stream owner holds the
// only readable copy.
func (r *Response) Stream() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != bodyUnread {
		return nil, r.consumedError()
	}
	if r.raw == nil || r.raw.Body == nil {
		return nil, r.consumedError()
	}
	r.state = bodyStream
	return r.raw.Body, nil
}

// decodeJSON decodes the cached payload, surfacing GraphQL errors first when
// the request asked for it. Callers must hold r.mu.
func (r *Response) decodeJSON(v any) error {
	if r.graphQL {
		if err := r.graphQLErrors(); err != nil {
			return err
		}
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(r.cache, v); err != nil {
		perr := NewParseError(fmt.Sprintf("failed to decode JSON body: %v", err), r.StatusCode(), err)
		attachRequestContext(perr, r.method, r.url)
		return perr
	}
	return nil
}

// graphQLErrors inspects the conventional top-level "errors" array and, when
// raising is enabled and the array is non-empty, summarizes every entry into
// one parse error with the HTTP status preserved.
func (r *Response) graphQLErrors() error {
	if !r.graphQLRaise {
		return nil
	}

	var envelope struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(r.cache, &envelope); err != nil || len(envelope.Errors) == 0 {
		return nil
	}

	messages := make([]string, 0, len(envelope.Errors))
	for _, entry := range envelope.Errors {
		var withMessage struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(entry, &withMessage); err == nil && withMessage.Message != "" {
			messages = append(messages, withMessage.Message)
			continue
		}
		messages = append(messages, string(entry))
	}

	err := NewParseError("GraphQL errors: "+strings.Join(messages, "; "), r.StatusCode(), nil)
	attachRequestContext(err, r.method, r.url)
	return err
}

// readAll drains and closes the underlying body. Callers must hold r.mu.
func (r *Response) readAll() ([]byte, error) {
	if r.raw == nil || r.raw.Body == nil {
		return nil, nil
	}
	defer r.raw.Body.Close()

	payload, err := io.ReadAll(r.raw.Body)
	if err != nil {
		nerr := NewNetworkError("failed to read response body", err)
		attachRequestContext(nerr, r.method, r.url)
		return nil, nerr
	}
	return payload, nil
}

func (r *Response) consumedError() error {
	err := NewParseError(fmt.Sprintf("body already consumed as %s", r.state), r.StatusCode(), ErrBodyConsumed)
	attachRequestContext(err, r.method, r.url)
	return err
}
