package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// TryComplete races a completion against timeout. The call runs in its own
// goroutine so a client that ignores cancellation cannot hold the caller.
// Any failure, including an empty reply, is reported as an error wrapping
// the cause; callers log it and skip the cycle.
func TryComplete(ctx context.Context, c Client, req Request, timeout time.Duration) (string, error) {
	if c == nil {
		return "", fmt.Errorf("no client configured: %w", ErrNoResult)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.Complete(ctx, req)
		done <- result{resp, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("completion: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("completion: %w", r.err)
		}
		if r.resp == nil || strings.TrimSpace(r.resp.Content) == "" {
			return "", ErrNoResult
		}
		return r.resp.Content, nil
	}
}

// Outcome classifies a TryComplete error for metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, ErrNoResult):
		return "empty"
	default:
		return "error"
	}
}
