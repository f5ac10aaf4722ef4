package apperrors

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestErrorMessageCarriesContext(t *testing.T) {
	err := New(CodeWorkflowViolation, "signer not eligible yet").
		WithEntity("sgn_1").
		WithStatus("PENDING").
		WithOperation("sign")
	msg := err.Error()
	for _, want := range []string{"WORKFLOW_VIOLATION", "sgn_1", "PENDING", "sign"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}
}

func TestIsMatchesByCode(t *testing.T) {
	err := Newf(CodeTokenExpired, "token expired at %s", "2026-01-01")
	if !errors.Is(err, New(CodeTokenExpired, "")) {
		t.Fatal("expected errors.Is match by code")
	}
	if errors.Is(err, New(CodeTokenRevoked, "")) {
		t.Fatal("unexpected match across codes")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("kms unavailable")
	err := Wrap(CodeSigningFailed, "external signer failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected unwrap to cause")
	}
	if CodeOf(err) != CodeSigningFailed {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
}

func TestCodeOfUntagged(t *testing.T) {
	if CodeOf(errors.New("plain")) != CodeUnknown {
		t.Fatal("expected CodeUnknown for plain errors")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeNotFound:               http.StatusNotFound,
		CodeWorkflowViolation:      http.StatusBadRequest,
		CodeInvalidStateTransition: http.StatusConflict,
		CodeTokenAlreadyUsed:       http.StatusGone,
		CodeSecurityViolation:      http.StatusForbidden,
		CodeComplianceViolation:    http.StatusUnprocessableEntity,
		CodeSigningFailed:          http.StatusBadGateway,
		CodeUnknown:                http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s: got %d want %d", code, got, want)
		}
	}
}
