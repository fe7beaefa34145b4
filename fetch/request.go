package fetch

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// Method is the HTTP method of a request descriptor.
type Method string

// Supported HTTP methods.
const (
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodOptions Method = http.MethodOptions
)

// QueryParam is one query string entry. Parameters are an ordered multi-map:
// repeated keys are permitted and encoding preserves insertion order.
type QueryParam struct {
	Key   string
	Value string
}

// BasicAuth contains basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// Request describes one not-yet-executed HTTP call. A descriptor is consumed
// once by the executor: policy fields (Timeout, Retry) are read once per run,
// and each attempt receives a fresh *http.Request so interceptor mutations
// never leak across attempts.
type Request struct {
	Method  Method
	URL     string
	Headers map[string]string
	Query   []QueryParam
	Body    *Body
	Timeout time.Duration
	Retry   *RetryPolicy
	Auth    *BasicAuth

	// Local interceptor chains, scoped to this descriptor.
	RequestInterceptors  []RequestInterceptor
	ResponseInterceptors []ResponseInterceptor
	ErrorInterceptors    []ErrorInterceptor

	// GraphQL enables inspection of the conventional top-level "errors"
	// field on JSON materialization. GraphQLKeepErrors opts out of raising,
	// returning the parsed body (errors included) instead.
	GraphQL           bool
	GraphQLKeepErrors bool
}

// SetHeader sets a header on the descriptor, deduplicating case-insensitively
// so the last write for a given key wins regardless of casing.
func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for existing := range r.Headers {
		if textproto.CanonicalMIMEHeaderKey(existing) == canonical {
			delete(r.Headers, existing)
		}
	}
	r.Headers[canonical] = value
	return r
}

// AddQuery appends a query parameter, keeping insertion order. Repeated keys
// produce repeated entries in the query string.
func (r *Request) AddQuery(key, value string) *Request {
	r.Query = append(r.Query, QueryParam{Key: key, Value: value})
	return r
}

// bodyKind tags the body source variant.
type bodyKind int

const (
	bodyKindNone bodyKind = iota
	bodyKindText
	bodyKindJSON
	bodyKindBytes
	bodyKindForm
	bodyKindStream
)

// Body is the opaque body source of a descriptor: absent, text, a JSON value,
// raw bytes, form values, or a reader stream. Non-stream bodies are encoded
// once and replayed on every attempt; a stream body is replayable across
// attempts only when the reader seeks.
type Body struct {
	kind        bodyKind
	contentType string

	text   string
	value  any
	raw    []byte
	form   url.Values
	stream io.Reader

	encoded   []byte
	encodeErr error
	encodedOK bool
}

// TextBody builds a plain-text body.
func TextBody(s string) *Body {
	return &Body{kind: bodyKindText, text: s, contentType: "text/plain; charset=utf-8"}
}

// JSONBody builds a body that is JSON-encoded once at first use.
func JSONBody(v any) *Body {
	return &Body{kind: bodyKindJSON, value: v, contentType: "application/json"}
}

// BytesBody builds a raw byte body. An empty contentType selects
// application/octet-stream.
func BytesBody(b []byte, contentType string) *Body {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Body{kind: bodyKindBytes, raw: b, contentType: contentType}
}

// FormBody builds a form-encoded body.
func FormBody(values url.Values) *Body {
	return &Body{kind: bodyKindForm, form: values, contentType: "application/x-www-form-urlencoded"}
}

// StreamBody builds a body read from r. The stream is handed to the transport
// as-is; retries replay it only when r implements io.Seeker.
func StreamBody(r io.Reader, contentType string) *Body {
	return &Body{kind: bodyKindStream, stream: r, contentType: contentType}
}

// payload encodes non-stream bodies, caching the result so every attempt
// re-sends identical bytes.
func (b *Body) payload() ([]byte, error) {
	if b.encodedOK {
		return b.encoded, b.encodeErr
	}
	b.encodedOK = true
	switch b.kind {
	case bodyKindText:
		b.encoded = []byte(b.text)
	case bodyKindBytes:
		b.encoded = b.raw
	case bodyKindForm:
		b.encoded = []byte(b.form.Encode())
	case bodyKindJSON:
		payload, err := json.Marshal(b.value)
		if err != nil {
			b.encodeErr = NewValidationError("failed to encode JSON body: "+err.Error(), "body")
		}
		b.encoded = payload
	}
	return b.encoded, b.encodeErr
}

// reader produces the attempt's body reader. For streams past the first
// attempt the reader is rewound when seekable; otherwise the retry is a fatal
// misconfiguration since the bytes were already consumed.
func (b *Body) reader(attempt int) (io.Reader, error) {
	if b == nil || b.kind == bodyKindNone {
		return nil, nil
	}
	if b.kind == bodyKindStream {
		if attempt > 0 {
			seeker, ok := b.stream.(io.Seeker)
			if !ok {
				return nil, NewValidationError("stream body cannot be replayed for retries", "body")
			}
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, NewValidationError("failed to rewind stream body: "+err.Error(), "body")
			}
		}
		return b.stream, nil
	}
	payload, err := b.payload()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(payload), nil
}

// preview returns the encoded payload for logging; streams are never buffered
// for logs.
func (b *Body) preview() []byte {
	if b == nil || b.kind == bodyKindNone || b.kind == bodyKindStream {
		return nil
	}
	payload, err := b.payload()
	if err != nil {
		return nil
	}
	return payload
}

// encodeQuery appends ordered query parameters to an existing raw query.
func encodeQuery(existing string, params []QueryParam) string {
	if len(params) == 0 {
		return existing
	}
	var sb strings.Builder
	sb.WriteString(existing)
	for _, p := range params {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}
