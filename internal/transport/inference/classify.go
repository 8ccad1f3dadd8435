package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/kailas-cloud/emsal/internal/domain"
)

// Classify maps a transport failure to a domain error.
// status is the HTTP status when the provider answered, 0 otherwise.
//
//	timeouts, 408, 504     -> domain.ErrTimeout
//	429, 5xx, no response  -> domain.ErrUnavailable
//	other 4xx              -> domain.ErrInvalidInput
func Classify(status int, err error) error {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	case status >= 400:
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
}

// StatusLabel is the metric status label for err.
func StatusLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrInvalidInput):
		return "rejected"
	case IsMalformed(err):
		return "malformed"
	default:
		return "error"
	}
}
