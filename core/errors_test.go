package core

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestSubmissionError_Envelope(t *testing.T) {
	cases := []struct {
		kind      SubmissionErrorKind
		category  goerrors.Category
		textCode  string
		status    int
		retryable bool
	}{
		{SubmissionInsurerRejection, goerrors.CategoryOperation, ClaimErrorInsurerRejected, http.StatusUnprocessableEntity, false},
		{SubmissionInsurerUnavailable, goerrors.CategoryExternal, ClaimErrorInsurerUnavailable, http.StatusBadGateway, true},
		{SubmissionPersistenceFailureAfterAck, goerrors.CategoryInternal, ClaimErrorPersistenceAfterAccept, http.StatusInternalServerError, true},
		{SubmissionConcurrentRejected, goerrors.CategoryConflict, ClaimErrorSubmissionInFlight, http.StatusConflict, true},
		{SubmissionUnresolved, goerrors.CategoryOperation, ClaimErrorSubmissionUnresolved, http.StatusUnprocessableEntity, true},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := &SubmissionError{Kind: tc.kind, DraftID: "d1", InsurerAckID: "ACK-1", Cause: errTransport}
			envelope := err.Envelope()
			if envelope.Category != tc.category {
				t.Fatalf("expected category %s, got %s", tc.category, envelope.Category)
			}
			if envelope.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, envelope.TextCode)
			}
			if envelope.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, envelope.Code)
			}
			if err.Retryable() != tc.retryable {
				t.Fatalf("expected retryable=%v", tc.retryable)
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) || rich.TextCode != tc.textCode {
				t.Fatalf("expected submission error to unwrap to its envelope")
			}
			if !errors.Is(err, errTransport) {
				t.Fatalf("expected cause to stay reachable")
			}
			if ReviewBanner(err) == "" {
				t.Fatalf("expected a review banner for %s", tc.kind)
			}
		})
	}
}

func TestReviewBanner_MentionsAckAfterAccept(t *testing.T) {
	banner := ReviewBanner(&SubmissionError{Kind: SubmissionPersistenceFailureAfterAck, InsurerAckID: "ACK-77"})
	if !strings.Contains(banner, "ACK-77") {
		t.Fatalf("expected ack id in banner, got %q", banner)
	}
	if ReviewBanner(errTransport) != "" {
		t.Fatalf("non submission errors have no banner")
	}
}

func TestMapError_ClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		textCode string
	}{
		{name: "session missing", err: ErrSessionMissing, textCode: ClaimErrorSessionNotFound},
		{name: "draft locked", err: ErrDraftLocked, textCode: ClaimErrorWizardStateInvalid},
		{name: "bad input", err: errors.New("core: policy id is required"), textCode: ClaimErrorBadInput},
		{name: "validation", err: ValidationResult{FieldErrors: []FieldError{{Field: FieldPolicy, Message: "required"}}}.Err(), textCode: ClaimErrorValidationFailed},
		{name: "submission", err: &SubmissionError{Kind: SubmissionInsurerUnavailable}, textCode: ClaimErrorInsurerUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := MapError(tc.err)
			if mapped == nil {
				t.Fatalf("expected mapped error")
			}
			if mapped.TextCode != tc.textCode {
				t.Fatalf("expected text code %s, got %s", tc.textCode, mapped.TextCode)
			}
			if mapped.Code == 0 {
				t.Fatalf("expected http-style code to be set")
			}
		})
	}
	if MapError(nil) != nil {
		t.Fatalf("nil maps to nil")
	}
}
