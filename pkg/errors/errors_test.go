package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeTransientSync, status: http.StatusServiceUnavailable, publicMsg: "sales api temporarily unavailable", retryable: true, detailsOK: true},
		{code: CodePermanentSync, status: http.StatusUnprocessableEntity, publicMsg: "sale rejected by sales api", detailsOK: true},
		{code: CodeStorage, status: http.StatusInsufficientStorage, publicMsg: "local sale store unavailable"},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeStorage, cause, "enqueue sale")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeStorage {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsAndHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodePermanentSync, "rejected"))
	if got := As(err); got == nil || got.Code() != CodePermanentSync {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodePermanentSync) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeTransientSync) {
		t.Fatalf("unexpected code match")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeTransientSync, "down")) {
		t.Fatalf("transient sync must be retryable")
	}
	if IsRetryable(New(CodePermanentSync, "bad payload")) {
		t.Fatalf("permanent sync must not be retryable")
	}
	if !IsRetryable(stdErrors.New("dial tcp: refused")) {
		t.Fatalf("untyped errors default to retryable")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := Wrap(CodeStorage, cause, "enqueue")
	dump := Dump(err)
	if dump.Code != CodeStorage {
		t.Fatalf("expected storage code, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(dump.Chain))
	}
}
