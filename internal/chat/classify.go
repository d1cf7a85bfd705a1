package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	oagc "github.com/openai/openai-go"
	"google.golang.org/genai"
)

// StatusError is a non-2xx HTTP reply from an inference endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, truncateString(e.Body, 200))
}

// Transient reports whether the status is worth one more attempt.
func (e *StatusError) Transient() bool {
	return transientStatus(e.StatusCode)
}

func transientStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether err is a transport failure that may succeed
// on retry: network errors, per-attempt deadlines, dropped connections and
// 408/429/5xx replies.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.Code)
	}
	var oaErr *oagc.Error
	if errors.As(err, &oaErr) {
		return transientStatus(oaErr.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// rejection splits a provider error into the two outcomes callers care
// about. Client-side HTTP failures (4xx other than 408/429) are the service
// refusing the request and become Result.Err; everything else stays a
// transport error.
func rejection(err error) (Result, error) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && !statusErr.Transient() && statusErr.StatusCode < 500 {
		return Result{Err: statusErr}, nil
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && !transientStatus(apiErr.Code) {
		return Result{Err: err}, nil
	}
	var oaErr *oagc.Error
	if errors.As(err, &oaErr) && oaErr.StatusCode >= 400 && oaErr.StatusCode < 500 && !transientStatus(oaErr.StatusCode) {
		return Result{Err: err}, nil
	}
	return Result{}, err
}
