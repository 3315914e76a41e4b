package reliability

import (
	"context"
	"errors"
	"net"
	"strconv"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusError is an upstream HTTP failure carrying its status code.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	msg := e.Provider + " http status " + strconv.Itoa(e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) HTTPStatus() int { return e.Status }

// Classify maps a provider error to a metrics code and whether a later
// attempt could succeed. Nothing in the service retries automatically; the
// flag is surfaced to clients so they can decide.
func Classify(err error) (code string, retryable bool) {
	if err == nil {
		return "", false
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled", false
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", true
	}

	var withStatus interface{ HTTPStatus() int }
	if errors.As(err, &withStatus) {
		status := withStatus.HTTPStatus()
		if status == 429 {
			return "rate_limited", true
		}
		return "http_" + strconv.Itoa(status), IsRetryableHTTPStatus(status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout", true
		}
		return "network", true
	}
	return "error", false
}
