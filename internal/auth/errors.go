package auth

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidInput    = errors.New("invalid request")
	ErrNotFound        = errors.New("not found")
	ErrUpstream        = errors.New("upstream failure")
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// Kind values are stable and returned to API clients.
const (
	KindUnauthenticated = "unauthenticated"
	KindForbidden       = "forbidden"
	KindInvalidRequest  = "invalid_request"
	KindNotFound        = "not_found"
	KindUpstream        = "upstream_error"
	KindUpstreamTimeout = "upstream_timeout"
)

// Kind classifies err into one of the Kind* values. Unclassified errors are
// reported as upstream failures.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidRequest
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUpstreamTimeout):
		return KindUpstreamTimeout
	default:
		return KindUpstream
	}
}

// Upstream wraps an error returned by an identity provider, record store or
// lock so that it carries ErrUpstream or ErrUpstreamTimeout. Errors that
// already belong to the taxonomy pass through unchanged.
func Upstream(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthenticated),
		errors.Is(err, ErrUpstream),
		errors.Is(err, ErrUpstreamTimeout):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %v", ErrUpstreamTimeout, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrUpstream, op, err)
	}
}
