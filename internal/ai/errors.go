package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	appErr "github.com/xxxsen/docfinder/internal/pkg/errors"
)

func statusKind(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return appErr.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return appErr.ErrTooMany
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return appErr.ErrTimeout
	case status >= http.StatusInternalServerError:
		return appErr.ErrUnavailable
	case status >= http.StatusBadRequest:
		return appErr.ErrInvalid
	default:
		return appErr.ErrInternal
	}
}

func wrapStatusError(provider string, status int, err error) error {
	return appErr.Wrap(statusKind(status), err, fmt.Sprintf("%s status %d", provider, status))
}

// wrapTransportError classifies errors that never produced an http status.
func wrapTransportError(provider string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return appErr.Wrap(appErr.ErrTimeout, err, provider)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return appErr.Wrap(appErr.ErrTimeout, err, provider)
		}
		return appErr.Wrap(appErr.ErrUnavailable, err, provider)
	}
	return err
}

func errNotConfigured(provider string) error {
	return appErr.New(appErr.ErrUnavailable, provider+" api key not configured")
}
