package fetch

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// dedupeGroup coalesces concurrent identical idempotent calls into one
// transport round trip. The owner buffers the body so every waiter receives
// its own independently consumable response copy.
type dedupeGroup struct {
	group singleflight.Group
}

// dedupeResult is the shared outcome of one coalesced round trip.
type dedupeResult struct {
	statusCode int
	status     string
	header     http.Header
	body       []byte
}

func newDedupeGroup() *dedupeGroup {
	return &dedupeGroup{}
}

// do executes the round trip through singleflight, keyed by method and URL.
// Waiters honor their own context: a caller cancelling its wait detaches
// without cancelling the in-flight call the others share.
func (d *dedupeGroup) do(ctx context.Context, transport Doer, req *http.Request) (*http.Response, error) {
	key := req.Method + " " + req.URL.String()

	ch := d.group.DoChan(key, func() (any, error) {
		resp, err := transport.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return &dedupeResult{
			statusCode: resp.StatusCode,
			status:     resp.Status,
			header:     resp.Header.Clone(),
			body:       body,
		}, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.(*dedupeResult)
		return &http.Response{
			StatusCode:    shared.statusCode,
			Status:        shared.status,
			Header:        shared.header.Clone(),
			Body:          io.NopCloser(bytes.NewReader(shared.body)),
			ContentLength: int64(len(shared.body)),
			Request:       req,
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
