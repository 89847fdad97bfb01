package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/ent0n29/pitwall/internal/reliability"
)

// ErrEmptyResponse is returned when the upstream answered without any text.
var ErrEmptyResponse = errors.New("llm: empty response")

// ErrMalformedResponse is returned when a JSON answer cannot be decoded.
var ErrMalformedResponse = errors.New("llm: malformed response")

// UpstreamError is a non-2xx answer from a model provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s http status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the status usually clears on its own.
func (e *UpstreamError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.StatusCode)
}

// ErrorCode buckets err into a short label for metrics and logs.
func ErrorCode(err error) string {
	if err == nil {
		return "ok"
	}
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return "status_" + strconv.Itoa(upstream.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "transport"
}
