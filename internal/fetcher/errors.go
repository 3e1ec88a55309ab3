package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a render failure.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not_found"
	KindHTTPStatus ErrorKind = "http_status"
	KindTimeout    ErrorKind = "timeout"
	KindNavigation ErrorKind = "navigation"
	KindCancelled  ErrorKind = "cancelled"
)

// RenderError is returned by every Session implementation.
type RenderError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Cause  error
}

func (e *RenderError) Error() string {
	switch e.Kind {
	case KindNotFound, KindHTTPStatus:
		if e.Status == 0 {
			return "HTTP unknown: Failed to load page"
		}
		return fmt.Sprintf("HTTP %d: Failed to load page", e.Status)
	case KindTimeout:
		return fmt.Sprintf("navigation timeout for %s: %v", e.URL, e.Cause)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("render %s: %v", e.URL, e.Cause)
		}
		return fmt.Sprintf("render %s: %s", e.URL, e.Kind)
	}
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// IsAbsent reports whether the target authoritatively does not exist (4xx other than 408/429).
func IsAbsent(err error) bool {
	var re *RenderError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Kind {
	case KindNotFound:
		return true
	case KindHTTPStatus:
		return re.Status >= 400 && re.Status < 500 &&
			re.Status != http.StatusRequestTimeout && re.Status != http.StatusTooManyRequests
	}
	return false
}

// IsRetryable reports whether a second attempt could plausibly succeed.
func IsRetryable(err error) bool {
	var re *RenderError
	if !errors.As(err, &re) {
		return false
	}
	switch re.Kind {
	case KindTimeout, KindNavigation:
		return true
	case KindHTTPStatus:
		return re.Status >= 500 || re.Status == http.StatusRequestTimeout || re.Status == http.StatusTooManyRequests
	}
	return false
}

// statusError maps a non-2xx document status onto a RenderError; nil when the status is 2xx.
func statusError(target string, status int) error {
	if status >= 200 && status < 300 {
		return nil
	}
	kind := KindHTTPStatus
	if status == http.StatusNotFound || status == http.StatusGone {
		kind = KindNotFound
	}
	return &RenderError{Kind: kind, URL: target, Status: status}
}

// wrapError classifies a transport or browser error.
func wrapError(ctx context.Context, target string, err error) error {
	if err == nil {
		return nil
	}
	var re *RenderError
	if errors.As(err, &re) {
		return err
	}
	kind := KindNavigation
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	case ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		kind = KindTimeout
	case ctx != nil && errors.Is(ctx.Err(), context.Canceled):
		kind = KindCancelled
	}
	return &RenderError{Kind: kind, URL: target, Cause: err}
}
