package appraisal

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure at the client/worker boundary. The worker
// is the sole retry authority; these kinds tell it whether to refresh
// the token, hand the job back to the broker, or fail outright.
type Kind string

const (
	KindTokenExpired       Kind = "TOKEN_EXPIRED"
	KindTransientUpstream  Kind = "TRANSIENT_UPSTREAM"
	KindAllPageSizesFailed Kind = "ALL_PAGE_SIZES_FAILED"
	KindNoToken            Kind = "NO_TOKEN"
	KindStoreError         Kind = "STORE_ERROR"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindTransport          Kind = "TRANSPORT_ERROR"
)

// Error is a classified failure. Its text is "KIND: message" so that
// job rows and logs carry both the class and a short tail of the
// underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the broker should redeliver the job after
// this failure. Validation failures and HTTP_4xx statuses are
// permanent; everything else is worth another attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindValidation:
		return false
	}
	// HTTP_4xx other than 401/409 will not get better on retry.
	if code, ok := strings.CutPrefix(string(e.Kind), "HTTP_"); ok {
		return code >= "500"
	}
	return true
}

// NewError builds a classified error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification from err, or "" when err is not
// a classified error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// httpKind returns the classification for a non-2xx status that is not
// handled specially by the page-size ladder.
func httpKind(status int) Kind {
	return Kind(fmt.Sprintf("HTTP_%d", status))
}
