package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ClaimErrorBadInput               = "CLAIM_BAD_INPUT"
	ClaimErrorValidationFailed       = "CLAIM_VALIDATION_FAILED"
	ClaimErrorLookupFailed           = "CLAIM_LOOKUP_FAILED"
	ClaimErrorDirectoryUnavailable   = "CLAIM_DIRECTORY_UNAVAILABLE"
	ClaimErrorInsurerRejected        = "CLAIM_INSURER_REJECTED"
	ClaimErrorInsurerUnavailable     = "CLAIM_INSURER_UNAVAILABLE"
	ClaimErrorPersistenceAfterAccept = "CLAIM_LOCAL_PERSISTENCE_AFTER_ACCEPT"
	ClaimErrorSubmissionInFlight     = "CLAIM_SUBMISSION_IN_FLIGHT"
	ClaimErrorSubmissionUnresolved   = "CLAIM_SUBMISSION_UNRESOLVED"
	ClaimErrorSessionNotFound        = "CLAIM_SESSION_NOT_FOUND"
	ClaimErrorWizardStateInvalid     = "CLAIM_WIZARD_STATE_INVALID"
	ClaimErrorUpstreamFailed         = "CLAIM_UPSTREAM_FAILED"
	ClaimErrorInternal               = "CLAIM_INTERNAL_ERROR"
)

var (
	ErrWizardTerminal = errors.New("core: wizard is in a terminal state")
	ErrDraftLocked    = errors.New("core: draft is locked by a submission")
	ErrWrongStep      = errors.New("core: field does not belong to the current step")
	ErrSessionMissing = errors.New("core: session not found")
)

type SubmissionErrorKind string

const (
	SubmissionInsurerRejection           SubmissionErrorKind = "insurer_rejection"
	SubmissionInsurerUnavailable         SubmissionErrorKind = "insurer_unavailable"
	SubmissionPersistenceFailureAfterAck SubmissionErrorKind = "local_persistence_failure_after_accept"
	SubmissionConcurrentRejected         SubmissionErrorKind = "concurrent_submission_rejected"
	SubmissionUnresolved                 SubmissionErrorKind = "submission_unresolved"
)

// SubmissionError is the typed error channel of the submission coordinator.
// Phase is 1 for insurer-side failures and 2 for local persistence failures;
// guard and unresolved errors carry phase 0.
type SubmissionError struct {
	Kind         SubmissionErrorKind
	Phase        int
	Reason       string
	InsurerAckID string
	DraftID      string
	Cause        error
	envelope     *goerrors.Error
}

func (e *SubmissionError) Error() string {
	if e == nil {
		return ""
	}
	return e.envelopeOrBuild().Error()
}

func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.envelopeOrBuild()
}

func (e *SubmissionError) Retryable() bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case SubmissionInsurerUnavailable, SubmissionPersistenceFailureAfterAck, SubmissionConcurrentRejected, SubmissionUnresolved:
		return true
	default:
		return false
	}
}

// Envelope returns the go-errors representation used by command and query
// handlers.
func (e *SubmissionError) Envelope() *goerrors.Error {
	if e == nil {
		return nil
	}
	return e.envelopeOrBuild()
}

func (e *SubmissionError) envelopeOrBuild() *goerrors.Error {
	if e.envelope != nil {
		return e.envelope
	}
	category, textCode := submissionErrorCategory(e.Kind)
	message := submissionErrorMessage(e)
	var rich *goerrors.Error
	if e.Cause != nil {
		rich = goerrors.Wrap(e.Cause, category, message)
	} else {
		rich = goerrors.New(message, category)
	}
	metadata := map[string]any{
		"kind":  string(e.Kind),
		"phase": e.Phase,
	}
	if e.DraftID != "" {
		metadata["draft_id"] = e.DraftID
	}
	if e.InsurerAckID != "" {
		metadata["insurer_ack_id"] = e.InsurerAckID
	}
	rich = rich.
		WithCode(claimHTTPStatus(category)).
		WithTextCode(textCode).
		WithMetadata(metadata)
	if e.Kind == SubmissionPersistenceFailureAfterAck {
		rich = rich.WithSeverity(goerrors.SeverityCritical)
	} else {
		rich = rich.WithSeverity(goerrors.SeverityError)
	}
	e.envelope = rich
	return rich
}

func submissionErrorCategory(kind SubmissionErrorKind) (goerrors.Category, string) {
	switch kind {
	case SubmissionInsurerRejection:
		return goerrors.CategoryOperation, ClaimErrorInsurerRejected
	case SubmissionInsurerUnavailable:
		return goerrors.CategoryExternal, ClaimErrorInsurerUnavailable
	case SubmissionPersistenceFailureAfterAck:
		return goerrors.CategoryInternal, ClaimErrorPersistenceAfterAccept
	case SubmissionConcurrentRejected:
		return goerrors.CategoryConflict, ClaimErrorSubmissionInFlight
	case SubmissionUnresolved:
		return goerrors.CategoryOperation, ClaimErrorSubmissionUnresolved
	default:
		return goerrors.CategoryInternal, ClaimErrorInternal
	}
}

func submissionErrorMessage(e *SubmissionError) string {
	reason := strings.TrimSpace(e.Reason)
	switch e.Kind {
	case SubmissionInsurerRejection:
		if reason == "" {
			reason = "no reason given"
		}
		return "core: insurer rejected claim: " + reason
	case SubmissionInsurerUnavailable:
		return "core: insurer unavailable"
	case SubmissionPersistenceFailureAfterAck:
		return fmt.Sprintf("core: local persistence failed after insurer accepted claim %s", e.InsurerAckID)
	case SubmissionConcurrentRejected:
		return "core: a submission is already in flight for this draft"
	case SubmissionUnresolved:
		return "core: submission outcome is unresolved"
	default:
		return "core: submission failed"
	}
}

// AsSubmissionError unwraps err into a *SubmissionError.
func AsSubmissionError(err error) (*SubmissionError, bool) {
	var subErr *SubmissionError
	if errors.As(err, &subErr) && subErr != nil {
		return subErr, true
	}
	return nil, false
}

func IsSubmissionKind(err error, kind SubmissionErrorKind) bool {
	subErr, ok := AsSubmissionError(err)
	return ok && subErr.Kind == kind
}

// ReviewBanner renders the single banner shown at the review step for the
// submission boundary errors. Other errors render as an empty string since
// they are shown inline at the field.
func ReviewBanner(err error) string {
	subErr, ok := AsSubmissionError(err)
	if !ok {
		return ""
	}
	switch subErr.Kind {
	case SubmissionInsurerRejection:
		if reason := strings.TrimSpace(subErr.Reason); reason != "" {
			return "The insurer rejected this claim: " + reason + ". Please correct the details and submit again."
		}
		return "The insurer rejected this claim. Please correct the details and submit again."
	case SubmissionInsurerUnavailable:
		return "We could not reach the insurer. Your claim was not submitted; it is safe to try again."
	case SubmissionPersistenceFailureAfterAck:
		return "The insurer accepted your claim (reference " + subErr.InsurerAckID + ") but we could not save it. Retry to finish saving; the claim will not be submitted twice."
	case SubmissionConcurrentRejected:
		return "This claim is already being submitted. Please wait for the current submission to finish."
	case SubmissionUnresolved:
		return "Your submission is still being processed. Check back shortly for the outcome."
	default:
		return ""
	}
}

func newDirectoryUnavailableError(policyID string, err error) error {
	return goerrors.Wrap(err, goerrors.CategoryExternal, "core: dependent directory unavailable").
		WithCode(http.StatusBadGateway).
		WithTextCode(ClaimErrorDirectoryUnavailable).
		WithMetadata(map[string]any{"policy_id": policyID, "retryable": true})
}

func newLookupFailure(pincode string, err error) error {
	message := "core: address lookup failed"
	if errors.Is(err, ErrPincodeNotFound) {
		message = "core: pincode not found"
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(ClaimErrorLookupFailed).
		WithMetadata(map[string]any{"pincode": pincode, "warning": true})
}

func newWizardStateError(err error, state WizardState) error {
	return goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).
		WithCode(http.StatusConflict).
		WithTextCode(ClaimErrorWizardStateInvalid).
		WithMetadata(map[string]any{"state": string(state)})
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	if subErr, ok := AsSubmissionError(err); ok {
		return subErr.Envelope()
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureClaimErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrSessionMissing):
		return newClaimError(err.Error(), goerrors.CategoryNotFound, ClaimErrorSessionNotFound)
	case errors.Is(err, ErrWizardTerminal), errors.Is(err, ErrDraftLocked), errors.Is(err, ErrWrongStep):
		return newClaimError(err.Error(), goerrors.CategoryConflict, ClaimErrorWizardStateInvalid)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unknown"):
		return newClaimError(err.Error(), goerrors.CategoryBadInput, ClaimErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureClaimErrorEnvelope(mapped)
}

// MapError converts any error surfaced by the service into a go-errors
// envelope with a claim text code.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}

func newClaimError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureClaimErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureClaimErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = claimHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultClaimTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultClaimTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ClaimErrorBadInput
	case goerrors.CategoryValidation:
		return ClaimErrorValidationFailed
	case goerrors.CategoryNotFound:
		return ClaimErrorSessionNotFound
	case goerrors.CategoryConflict:
		return ClaimErrorWizardStateInvalid
	case goerrors.CategoryExternal:
		return ClaimErrorUpstreamFailed
	default:
		return ClaimErrorInternal
	}
}

func claimHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryOperation:
		return http.StatusUnprocessableEntity
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
