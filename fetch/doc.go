// Package fetch is a declarative HTTP request execution engine. Given a
// Request descriptor and a caller context it produces exactly one settled
// outcome: a consumable *Response or a classified error implementing
// ClientError.
//
// Execution pipeline
//   - Per attempt: global then local request interceptors (either may mutate
//     the request or short-circuit the transport with a prebuilt response),
//     the transport call under the composed cancellation signal, error
//     classification and the error interceptor chain (which may recover the
//     attempt with a response), then local-first response interceptors.
//   - The retry controller wraps the sequence: Retries counts additional
//     attempts beyond the first, delays come from a fixed duration, a delay
//     function or a named backoff strategy, and an invalid computed delay
//     fails the request immediately as a configuration error.
//
// Cancellation
//   - The per-attempt timeout and the caller context are composed into one
//     effective signal; after a failure the engine attributes the
//     cancellation to the timeout (TimeoutError) or the caller
//     (AbortedError). Timers are released on every exit path.
//
// Responses
//   - Bodies materialize lazily through Text, JSON, Bytes or Stream. The
//     first successful call fixes the format and caches the payload; a
//     different materialization afterwards fails with a body-already-consumed
//     parse error.
package fetch
