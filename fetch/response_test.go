package fetch

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReader struct {
	reader io.Reader
	reads  int
	closed bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads++
	return c.reader.Read(p)
}

func (c *countingReader) Close() error {
	c.closed = true
	return nil
}

func responseWithBody(body string) (*Response, *countingReader) {
	reader := &countingReader{reader: strings.NewReader(body)}
	raw := &http.Response{
		StatusCode:    200,
		Status:        "200 OK",
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          reader,
		ContentLength: int64(len(body)),
	}
	return wrapResponse(raw, "GET", "https://api.example.com/items"), reader
}

func TestResponseAccessors(t *testing.T) {
	resp, _ := responseWithBody(`{"id": 1}`)

	assert.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "200 OK", resp.Status())
	assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
	assert.True(t, resp.Ok())
	assert.Equal(t, "GET", resp.Method())
	assert.Equal(t, "https://api.example.com/items", resp.URL())
	assert.Equal(t, int64(9), resp.ContentLength())
}

func TestResponseOk(t *testing.T) {
	tests := []struct {
		status   int
		expected bool
	}{
		{200, true},
		{204, true},
		{299, true},
		{301, false},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		resp := NewResponse(tt.status, nil, nil)
		assert.Equal(t, tt.expected, resp.Ok(), "status %d", tt.status)
	}
}

func TestResponseTextCaching(t *testing.T) {
	resp, reader := responseWithBody("hello world")

	first, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello world", first)
	assert.True(t, reader.closed, "body should be closed after materialization")

	readsAfterFirst := reader.reads
	second, err := resp.Text()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, readsAfterFirst, reader.reads, "repeat Text() must hit the cache")
}

func TestResponseBytesCaching(t *testing.T) {
	resp, _ := responseWithBody("payload")

	first, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), first)

	second, err := resp.Bytes()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResponseJSONDecoding(t *testing.T) {
	t.Run("decodes into struct", func(t *testing.T) {
		resp, _ := responseWithBody(`{"name": "alice", "age": 30}`)

		var user struct {
			Name string `json:"name"`
			Age  int    `json:"age"`
		}
		require.NoError(t, resp.JSON(&user))
		assert.Equal(t, "alice", user.Name)
		assert.Equal(t, 30, user.Age)
	})

	t.Run("repeat calls decode the cached payload", func(t *testing.T) {
		resp, _ := responseWithBody(`{"value": 42}`)

		var first map[string]int
		require.NoError(t, resp.JSON(&first))

		var second map[string]int
		require.NoError(t, resp.JSON(&second))
		assert.Equal(t, first, second)
	})

	t.Run("nil target validates without decoding", func(t *testing.T) {
		resp, _ := responseWithBody(`{"ok": true}`)
		require.NoError(t, resp.JSON(nil))
	})

	t.Run("invalid JSON raises a parse error", func(t *testing.T) {
		resp, _ := responseWithBody(`{"broken":`)

		var out map[string]any
		err := resp.JSON(&out)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ParseError))
		assert.Contains(t, err.Error(), "not valid JSON")
		assert.Contains(t, err.Error(), "200")
	})

	t.Run("type mismatch raises a parse error", func(t *testing.T) {
		resp, _ := responseWithBody(`{"age": "not a number"}`)

		var out struct {
			Age int `json:"age"`
		}
		err := resp.JSON(&out)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ParseError))
		assert.Contains(t, err.Error(), "failed to decode JSON body")
	})
}

func TestResponseStream(t *testing.T) {
	resp, reader := responseWithBody("streamed content")

	stream, err := resp.Stream()
	require.NoError(t, err)

	payload, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "streamed content", string(payload))
	assert.False(t, reader.closed, "stream ownership transfers to the caller")

	_, err = resp.Stream()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBodyConsumed), "second Stream() must fail")
}

func TestResponseBodyConsumedAcrossAccessors(t *testing.T) {
	tests := []struct {
		name    string
		consume func(r *Response) error
		attempt func(r *Response) error
		state   string
	}{
		{
			name:    "text then json",
			consume: func(r *Response) error { _, err := r.Text(); return err },
			attempt: func(r *Response) error { return r.JSON(&map[string]any{}) },
			state:   "text",
		},
		{
			name:    "json then text",
			consume: func(r *Response) error { return r.JSON(nil) },
			attempt: func(r *Response) error { _, err := r.Text(); return err },
			state:   "json",
		},
		{
			name:    "bytes then stream",
			consume: func(r *Response) error { _, err := r.Bytes(); return err },
			attempt: func(r *Response) error { _, err := r.Stream(); return err },
			state:   "bytes",
		},
		{
			name:    "stream then bytes",
			consume: func(r *Response) error { _, err := r.Stream(); return err },
			attempt: func(r *Response) error { _, err := r.Bytes(); return err },
			state:   "stream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := responseWithBody(`{"a": 1}`)
			require.NoError(t, tt.consume(resp))

			err := tt.attempt(resp)
			require.Error(t, err)
			assert.True(t, IsErrorType(err, ParseError))
			assert.True(t, errors.Is(err, ErrBodyConsumed))
			assert.Contains(t, err.Error(), "body already consumed as "+tt.state)
		})
	}
}

func TestSyntheticResponse(t *testing.T) {
	t.Run("NewResponse with nil header", func(t *testing.T) {
		resp := NewResponse(202, nil, []byte("accepted"))
		assert.Equal(t, 202, resp.StatusCode())
		assert.NotNil(t, resp.Header())

		text, err := resp.Text()
		require.NoError(t, err)
		assert.Equal(t, "accepted", text)
	})

	t.Run("NewJSONResponse encodes the value", func(t *testing.T) {
		resp, err := NewJSONResponse(201, map[string]string{"id": "abc"})
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode())
		assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))

		var out map[string]string
		require.NoError(t, resp.JSON(&out))
		assert.Equal(t, "abc", out["id"])
	})

	t.Run("NewJSONResponse rejects unencodable values", func(t *testing.T) {
		_, err := NewJSONResponse(200, make(chan int))
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ParseError))
	})
}

func TestGraphQLErrorSurfacing(t *testing.T) {
	newGraphQLResponse := func(body string, raise bool) *Response {
		resp, _ := responseWithBody(body)
		resp.graphQL = true
		resp.graphQLRaise = raise
		return resp
	}

	t.Run("errors array raises a parse error", func(t *testing.T) {
		resp := newGraphQLResponse(`{"data": null, "errors": [{"message": "field not found"}, {"message": "access denied"}]}`, true)

		var out map[string]any
		err := resp.JSON(&out)
		require.Error(t, err)
		assert.True(t, IsErrorType(err, ParseError))
		assert.Contains(t, err.Error(), "GraphQL errors: field not found; access denied")
		assert.Contains(t, err.Error(), "200", "HTTP status is preserved")
	})

	t.Run("entries without a message fall back to raw JSON", func(t *testing.T) {
		resp := newGraphQLResponse(`{"errors": [{"code": 42}]}`, true)

		err := resp.JSON(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `{"code": 42}`)
	})

	t.Run("empty errors array decodes normally", func(t *testing.T) {
		resp := newGraphQLResponse(`{"data": {"ok": true}, "errors": []}`, true)

		var out map[string]any
		require.NoError(t, resp.JSON(&out))
	})

	t.Run("raising disabled keeps the errors in the payload", func(t *testing.T) {
		resp := newGraphQLResponse(`{"errors": [{"message": "boom"}]}`, false)

		var out struct {
			Errors []struct {
				Message string `json:"message"`
			} `json:"errors"`
		}
		require.NoError(t, resp.JSON(&out))
		require.Len(t, out.Errors, 1)
		assert.Equal(t, "boom", out.Errors[0].Message)
	})
}

func TestResponseReadFailure(t *testing.T) {
	raw := &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Header:     make(http.Header),
		Body:       io.NopCloser(&failingReader{}),
	}
	resp := wrapResponse(raw, "GET", "https://api.example.com/items")

	_, err := resp.Text()
	require.Error(t, err)
	assert.True(t, IsErrorType(err, NetworkError))
	assert.Contains(t, err.Error(), "failed to read response body")
}

type failingReader struct{}

func (f *failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset mid-body")
}
