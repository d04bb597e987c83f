package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nutrition-rag/internal/apperr"
	"nutrition-rag/internal/retry"
)

// maxErrorBody bounds how much of an error response ends up in the error message.
const maxErrorBody = 512

// statusError classifies a non-2xx response. 429 and 5xx are transient;
// everything else is a permanent upstream rejection.
func statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		err := apperr.Errorf(apperr.KindTransientUpstream, op, "bad status %d: %s", resp.StatusCode, msg)
		return retry.After(err, retryAfter(resp.Header.Get("Retry-After")))
	}
	return apperr.Errorf(apperr.KindUpstream, op, "bad status %d: %s", resp.StatusCode, msg)
}

// transportError classifies a request that got no response. A per-request
// timeout is transient; cancellation of the caller's context is not.
func transportError(parent context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	return apperr.New(apperr.KindTransientUpstream, op, fmt.Errorf("failed to send request: %w", err))
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
