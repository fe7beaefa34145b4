package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// ErrorType represents the category of client error
type ErrorType string

const (
	// NetworkError indicates the transport failed before a response was received
	NetworkError ErrorType = "network"
	// TimeoutError indicates the attempt timeout fired before the call settled
	TimeoutError ErrorType = "timeout"
	// AbortedError indicates the caller's cancellation fired before the call settled
	AbortedError ErrorType = "aborted"
	// HTTPError indicates a response was received with a failure status
	HTTPError ErrorType = "http"
	// ParseError indicates body materialization failed
	ParseError ErrorType = "parse"
	// ValidationError indicates a fatal misconfiguration; never retried
	ValidationError ErrorType = "validation"
	// InterceptorError indicates an interceptor itself failed
	InterceptorError ErrorType = "interceptor"
)

// Network error subtypes assigned by the heuristic classifier.
const (
	networkSubtypeGeneric    = "generic"
	networkSubtypeDNS        = "dns"
	networkSubtypeConnection = "connection"
)

// ErrBodyConsumed is carried as the cause of the ParseError raised when a
// second, different body materialization is attempted on a Response.
var ErrBodyConsumed = errors.New("body already consumed")

// ClientError is the error contract of the execution engine. Every failed
// request surfaces exactly one ClientError; errors.Is/As work through the
// wrapped cause.
type ClientError interface {
	error
	Type() ErrorType
}

// requestContexter is implemented by error variants that carry the method and
// URL of the request they classified.
type requestContexter interface {
	setRequestContext(method, url string)
}

// attachRequestContext stamps method/URL diagnostics onto a classified error
// when its variant supports them.
func attachRequestContext(err error, method, url string) {
	if rc, ok := err.(requestContexter); ok {
		rc.setRequestContext(method, url)
	}
}

// stack is the call stack captured at the classification site.
type stack []uintptr

func callers() stack {
	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

func (s stack) String() string {
	var b strings.Builder
	frames := runtime.CallersFrames(s)
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}

// formatClassified renders the standard message for %s/%v and appends a
// delimited caused-by section with the classification-site stack for %+v.
func formatClassified(s fmt.State, verb rune, err ClientError, cause error, st stack) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			io.WriteString(s, err.Error())
			io.WriteString(s, "\ncaused by:\n")
			if cause != nil {
				fmt.Fprintf(s, "%+v\n", cause)
			}
			io.WriteString(s, st.String())
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, err.Error())
	case 'q':
		fmt.Fprintf(s, "%q", err.Error())
	}
}

// networkError represents network-level failures (DNS, connection refused/reset,
// and anything the heuristics could not attribute more precisely).
type networkError struct {
	message string
	cause   error
	subtype string
	method  string
	url     string
	stack   stack
}

// NewNetworkError creates a network error with an optional underlying cause
func NewNetworkError(message string, cause error) ClientError {
	return &networkError{message: message, cause: cause, subtype: networkSubtypeGeneric, stack: callers()}
}

func newNetworkErrorWithSubtype(message, subtype string, cause error) *networkError {
	return &networkError{message: message, cause: cause, subtype: subtype, stack: callers()}
}

func (e *networkError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("network error: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("network error: %s", e.message)
}

func (e *networkError) Type() ErrorType { return NetworkError }

// Subtype reports the network failure flavor: "generic", "dns" or "connection".
func (e *networkError) Subtype() string { return e.subtype }

func (e *networkError) Unwrap() error { return e.cause }

func (e *networkError) Method() string { return e.method }

func (e *networkError) URL() string { return e.url }

func (e *networkError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *networkError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, e.cause, e.stack) }

// timeoutError represents a request that exceeded its configured timeout.
type timeoutError struct {
	message string
	timeout time.Duration
	method  string
	url     string
	stack   stack
}

// NewTimeoutError creates a timeout error carrying the configured duration.
// A zero duration means the timeout was detected heuristically rather than
// configured by the caller.
func NewTimeoutError(message string, timeout time.Duration) ClientError {
	return &timeoutError{message: message, timeout: timeout, stack: callers()}
}

func (e *timeoutError) Error() string {
	if e.timeout > 0 {
		return fmt.Sprintf("timeout error: %s (timeout: %s)", e.message, e.timeout)
	}
	return fmt.Sprintf("timeout error: %s", e.message)
}

func (e *timeoutError) Type() ErrorType { return TimeoutError }

// Timeout returns the configured timeout, zero when detected heuristically.
func (e *timeoutError) Timeout() time.Duration { return e.timeout }

func (e *timeoutError) Method() string { return e.method }

func (e *timeoutError) URL() string { return e.url }

func (e *timeoutError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *timeoutError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, nil, e.stack) }

// abortedError represents a request cancelled by the caller before settling.
type abortedError struct {
	message string
	cause   error
	method  string
	url     string
	stack   stack
}

// NewAbortedError creates an aborted error with an optional underlying cause
func NewAbortedError(message string, cause error) ClientError {
	return &abortedError{message: message, cause: cause, stack: callers()}
}

func (e *abortedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("aborted error: %s: %v", e.message, e.cause)
	}
	return fmt.Sprintf("aborted error: %s", e.message)
}

func (e *abortedError) Type() ErrorType { return AbortedError }

func (e *abortedError) Unwrap() error { return e.cause }

func (e *abortedError) Method() string { return e.method }

func (e *abortedError) URL() string { return e.url }

func (e *abortedError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *abortedError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, e.cause, e.stack) }

// httpError represents a response received with a failure status. The
// originating Response stays attached and readable once by the caller.
type httpError struct {
	message    string
	statusCode int
	body       []byte
	response   *Response
	method     string
	url        string
	stack      stack
}

// NewHTTPError creates an HTTP status error with an optional body excerpt
func NewHTTPError(message string, statusCode int, body []byte) ClientError {
	return &httpError{message: message, statusCode: statusCode, body: body, stack: callers()}
}

func (e *httpError) Error() string {
	return fmt.Sprintf("HTTP error: %s (status: %d)", e.message, e.statusCode)
}

func (e *httpError) Type() ErrorType { return HTTPError }

// StatusCode returns the HTTP status that triggered the error.
func (e *httpError) StatusCode() int { return e.statusCode }

// Body returns the raw body excerpt attached at classification time, if any.
func (e *httpError) Body() []byte { return e.body }

// Response returns the wrapped response for inspection; its body is still
// readable once.
func (e *httpError) Response() *Response { return e.response }

func (e *httpError) Method() string { return e.method }

func (e *httpError) URL() string { return e.url }

func (e *httpError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *httpError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, nil, e.stack) }

// parseError represents a body materialization failure: malformed payloads,
// a second materialization on a consumed body, or GraphQL errors surfaced
// from an otherwise successful response.
type parseError struct {
	message    string
	statusCode int
	cause      error
	method     string
	url        string
	stack      stack
}

// NewParseError creates a parse error carrying the status of the response
// whose body failed to materialize
func NewParseError(message string, statusCode int, cause error) ClientError {
	return &parseError{message: message, statusCode: statusCode, cause: cause, stack: callers()}
}

func (e *parseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("parse error: %s (status: %d): %v", e.message, e.statusCode, e.cause)
	}
	return fmt.Sprintf("parse error: %s (status: %d)", e.message, e.statusCode)
}

func (e *parseError) Type() ErrorType { return ParseError }

// StatusCode returns the status of the response whose body failed to parse.
func (e *parseError) StatusCode() int { return e.statusCode }

func (e *parseError) Unwrap() error { return e.cause }

func (e *parseError) Method() string { return e.method }

func (e *parseError) URL() string { return e.url }

func (e *parseError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *parseError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, e.cause, e.stack) }

// validationError represents a fatal misconfiguration such as a negative
// retry delay. It is never retried.
type validationError struct {
	message string
	field   string
	stack   stack
}

// NewValidationError creates a validation error for the given field
func NewValidationError(message, field string) ClientError {
	return &validationError{message: message, field: field, stack: callers()}
}

func (e *validationError) Error() string {
	if e.field != "" {
		return fmt.Sprintf("validation error: %s (field: %s)", e.message, e.field)
	}
	return fmt.Sprintf("validation error: %s", e.message)
}

func (e *validationError) Type() ErrorType { return ValidationError }

// Field returns the name of the offending configuration field.
func (e *validationError) Field() string { return e.field }

func (e *validationError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, nil, e.stack) }

// interceptorError represents a failure raised by an interceptor itself.
type interceptorError struct {
	message string
	stage   string
	cause   error
	method  string
	url     string
	stack   stack
}

// NewInterceptorError creates an interceptor error for the given pipeline
// stage ("request", "response" or "error")
func NewInterceptorError(message, stage string, cause error) ClientError {
	return &interceptorError{message: message, stage: stage, cause: cause, stack: callers()}
}

func (e *interceptorError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("interceptor error: %s (stage: %s): %v", e.message, e.stage, e.cause)
	}
	return fmt.Sprintf("interceptor error: %s (stage: %s)", e.message, e.stage)
}

func (e *interceptorError) Type() ErrorType { return InterceptorError }

// Stage returns the pipeline stage whose interceptor failed.
func (e *interceptorError) Stage() string { return e.stage }

func (e *interceptorError) Unwrap() error { return e.cause }

func (e *interceptorError) Method() string { return e.method }

func (e *interceptorError) URL() string { return e.url }

func (e *interceptorError) setRequestContext(method, url string) { e.method, e.url = method, url }

func (e *interceptorError) Format(s fmt.State, verb rune) { formatClassified(s, verb, e, e.cause, e.stack) }

// IsErrorType checks whether err (or any error in its chain) is a ClientError
// of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var clientErr ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Type() == errorType
	}
	return false
}

// IsHTTPStatusError checks whether err is an HTTP error with the given status
func IsHTTPStatusError(err error, statusCode int) bool {
	var httpErr *httpError
	if errors.As(err, &httpErr) {
		return httpErr.statusCode == statusCode
	}
	return false
}

// IsSuccessStatus reports whether the status is in the 2xx range
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func isClientError(err error) bool {
	var clientErr ClientError
	return errors.As(err, &clientErr)
}

// statusMessage builds the "HTTP <status>" message, richer when the status
// text is known.
func statusMessage(statusCode int) string {
	if text := http.StatusText(statusCode); text != "" {
		return fmt.Sprintf("HTTP %d %s", statusCode, text)
	}
	return fmt.Sprintf("HTTP %d", statusCode)
}

// classifyTransportError maps a raw transport failure to a ClientError using
// best-effort heuristics. Structured signals (net.Error timeouts, context
// deadlines, known syscall codes, DNS errors) are checked before the message
// substring fallback, which is approximate by nature: a legitimate non-timeout
// failure whose text happens to contain "timeout" is classified as a timeout.
func classifyTransportError(err error, method, url string) ClientError {
	classified := heuristicClassify(err)
	attachRequestContext(classified, method, url)
	return classified
}

func heuristicClassify(err error) ClientError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError(err.Error(), 0)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewTimeoutError(err.Error(), 0)
	}
	if errors.Is(err, syscall.ETIMEDOUT) {
		return NewTimeoutError(err.Error(), 0)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newNetworkErrorWithSubtype("DNS lookup failed", networkSubtypeDNS, err)
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return newNetworkErrorWithSubtype("connection refused", networkSubtypeConnection, err)
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return newNetworkErrorWithSubtype("connection reset", networkSubtypeConnection, err)
	}

	// Last resort: substring matching over the error chain text.
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "timeout") || strings.Contains(text, "timed out") || strings.Contains(text, "deadline exceeded") {
		return NewTimeoutError(err.Error(), 0)
	}

	return NewNetworkError("request execution failed", err)
}
