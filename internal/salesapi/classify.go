package salesapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
)

// Failure is attached as details to every classified submission error.
// StatusCode is zero when no HTTP response was received.
type Failure struct {
	StatusCode int    `json:"statusCode,omitempty"`
	Reason     string `json:"reason"`
}

// IsTransient reports whether err should leave the sale queued for retry.
func IsTransient(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeTransientSync)
}

// IsPermanent reports whether err is a rejection that retrying cannot fix.
func IsPermanent(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodePermanentSync)
}

// FailureOf extracts the failure details from a classified error.
func FailureOf(err error) (Failure, bool) {
	typed := pkgerrors.As(err)
	if typed == nil {
		return Failure{}, false
	}
	f, ok := typed.Details().(Failure)
	return f, ok
}

// Transient marks status codes the remote side may answer differently later:
// 408, 429 and every 5xx.
func Transient(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func classifyStatus(status int, reason string) error {
	if reason == "" {
		reason = http.StatusText(status)
	}
	failure := Failure{StatusCode: status, Reason: reason}
	cause := fmt.Errorf("status %d: %s", status, reason)
	if Transient(status) {
		return pkgerrors.Wrap(pkgerrors.CodeTransientSync, cause, "sales api unavailable").WithDetails(failure)
	}
	return pkgerrors.Wrap(pkgerrors.CodePermanentSync, cause, "sales api rejected sale").WithDetails(failure)
}

// transportFailure covers dial errors, resets and deadline expiry. None of
// them prove the remote side saw the request, so all are retryable.
func transportFailure(err error) error {
	reason := "network error"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		reason = "timeout"
	case errors.Is(err, context.Canceled):
		reason = "canceled"
	}
	return pkgerrors.Wrap(pkgerrors.CodeTransientSync, err, "sales api unreachable").WithDetails(Failure{Reason: reason})
}
