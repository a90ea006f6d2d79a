package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type WizardState string

const (
	WizardPolicySelect    WizardState = "policy_select"
	WizardDependentSelect WizardState = "dependent_select"
	WizardDetailEntry     WizardState = "detail_entry"
	WizardReview          WizardState = "review"
	WizardTerminal        WizardState = "terminal"
)

type TerminalOutcome string

const (
	TerminalSuccess TerminalOutcome = "success"
	TerminalAborted TerminalOutcome = "aborted"
)

var (
	ErrReviewRequiresSubmit = errors.New("core: review step is confirmed by submitting")
	ErrSessionChanged       = errors.New("core: session changed during transition")
)

func (s WizardState) next() (WizardState, bool) {
	switch s {
	case WizardPolicySelect:
		return WizardDependentSelect, true
	case WizardDependentSelect:
		return WizardDetailEntry, true
	case WizardDetailEntry:
		return WizardReview, true
	default:
		return s, false
	}
}

func (s WizardState) prev() WizardState {
	switch s {
	case WizardDependentSelect:
		return WizardPolicySelect
	case WizardDetailEntry:
		return WizardDependentSelect
	case WizardReview:
		return WizardDetailEntry
	default:
		return s
	}
}

// StepIndex is the 1-based position of the step, 0 for terminal.
func (s WizardState) StepIndex() int {
	switch s {
	case WizardPolicySelect:
		return 1
	case WizardDependentSelect:
		return 2
	case WizardDetailEntry:
		return 3
	case WizardReview:
		return 4
	default:
		return 0
	}
}

type Transition struct {
	From       WizardState
	To         WizardState
	Validation ValidationResult
}

// WizardController drives the step state machine of a session. It holds no
// session state itself; every call receives the session it acts on.
type WizardController struct {
	gate        *ValidationGate
	directory   *DependentDirectory
	address     *AddressResolver
	coordinator *SubmissionCoordinator
}

func NewWizardController(
	gate *ValidationGate,
	directory *DependentDirectory,
	address *AddressResolver,
	coordinator *SubmissionCoordinator,
) *WizardController {
	if gate == nil {
		gate = NewValidationGate(defaultPincodeLength)
	}
	return &WizardController{
		gate:        gate,
		directory:   directory,
		address:     address,
		coordinator: coordinator,
	}
}

// Advance validates the current step and moves exactly one step forward.
// Entering dependent selection fetches the policy dependents; a failed fetch
// leaves the session where it was.
func (w *WizardController) Advance(ctx context.Context, session *SessionStore) (Transition, error) {
	if session == nil {
		return Transition{}, ErrSessionMissing
	}

	var (
		transition Transition
		policyID   string
		stepErr    error
	)
	session.withLock(func() {
		if session.cleared && session.state != WizardTerminal {
			stepErr = ErrSessionMissing
			return
		}
		transition.From = session.state
		switch session.state {
		case WizardTerminal:
			stepErr = ErrWizardTerminal
			return
		case WizardReview:
			stepErr = ErrReviewRequiresSubmit
			return
		}
		transition.Validation = w.gate.Validate(session.state, ValidationInput{
			Draft:      session.draft,
			Dependents: session.dependents,
		})
		if !transition.Validation.Valid {
			stepErr = transition.Validation.Err()
			return
		}
		transition.To, _ = session.state.next()
		if transition.To != WizardDependentSelect {
			session.state = transition.To
			return
		}
		policyID = session.draft.Policy.PolicyID
	})
	if stepErr != nil {
		if errors.Is(stepErr, ErrWizardTerminal) || errors.Is(stepErr, ErrReviewRequiresSubmit) {
			return transition, newWizardStateError(stepErr, transition.From)
		}
		return transition, stepErr
	}
	if transition.To != WizardDependentSelect {
		return transition, nil
	}

	dependents, err := w.directory.Eligible(ctx, policyID)
	if err != nil {
		transition.To = ""
		return transition, err
	}

	session.withLock(func() {
		if session.cleared || session.state != WizardPolicySelect || session.draft.Policy.PolicyID != policyID {
			stepErr = ErrSessionChanged
			return
		}
		session.dependents = dependents
		session.state = WizardDependentSelect
	})
	if stepErr != nil {
		transition.To = ""
		return transition, newWizardStateError(stepErr, transition.From)
	}
	return transition, nil
}

// Retreat re-enters the previous step without touching the draft. It is a
// no-op on the first step.
func (w *WizardController) Retreat(session *SessionStore) (Transition, error) {
	if session == nil {
		return Transition{}, ErrSessionMissing
	}
	var (
		transition Transition
		stepErr    error
	)
	session.withLock(func() {
		transition.From = session.state
		switch {
		case session.state == WizardTerminal:
			stepErr = ErrWizardTerminal
		case session.submission.Locked():
			stepErr = ErrDraftLocked
		default:
			session.state = session.state.prev()
			transition.To = session.state
		}
	})
	if stepErr != nil {
		return transition, newWizardStateError(stepErr, transition.From)
	}
	return transition, nil
}

// Abandon ends the session without persisting anything. A submission the
// insurer already accepted stays in the ledger for the reconciler.
func (w *WizardController) Abandon(session *SessionStore) error {
	if session == nil {
		return ErrSessionMissing
	}
	session.withLock(func() {
		if session.state == WizardTerminal {
			return
		}
		session.state = WizardTerminal
		session.outcome = TerminalAborted
		session.clearLocked()
	})
	return nil
}

// Submit sends the reviewed draft through the submission coordinator.
func (w *WizardController) Submit(ctx context.Context, session *SessionStore) (SubmissionResult, error) {
	if session == nil {
		return SubmissionResult{}, ErrSessionMissing
	}
	if state := session.State(); state != WizardReview {
		if state == WizardTerminal {
			return SubmissionResult{}, newWizardStateError(ErrWizardTerminal, state)
		}
		return SubmissionResult{}, newWizardStateError(fmt.Errorf("%w: submit is only allowed at review", ErrWrongStep), state)
	}
	if w == nil || w.coordinator == nil {
		return SubmissionResult{}, fmt.Errorf("core: submission coordinator is not configured")
	}
	return w.coordinator.Submit(ctx, session)
}

func (w *WizardController) SelectPolicy(session *SessionStore, policy PolicySelection) error {
	return w.mutateStep(session, WizardPolicySelect, FieldPolicy, func(view sessionView) error {
		policy.PolicyID = strings.TrimSpace(policy.PolicyID)
		policy.PolicyNumber = strings.TrimSpace(policy.PolicyNumber)
		if view.draft.Policy.PolicyID != policy.PolicyID {
			view.draft.Patient = PatientRef{}
		}
		view.draft.Policy = policy
		return nil
	})
}

func (w *WizardController) SetClaimType(session *SessionStore, claimType ClaimType) error {
	return w.mutateStep(session, WizardPolicySelect, FieldClaimType, func(view sessionView) error {
		if !claimType.Valid() {
			return ValidationResult{FieldErrors: []FieldError{{Field: FieldClaimType, Message: "claim type is not supported"}}}.Err()
		}
		view.draft.ClaimType = claimType
		return nil
	})
}

func (w *WizardController) SelectPatient(session *SessionStore, uhid string) error {
	return w.mutateStep(session, WizardDependentSelect, FieldPatientUHID, func(view sessionView) error {
		uhid = strings.TrimSpace(uhid)
		for _, dependent := range view.dependents {
			if dependent.UHID == uhid {
				view.draft.Patient = dependent
				return nil
			}
		}
		return ValidationResult{FieldErrors: []FieldError{{Field: FieldPatientUHID, Message: "patient is not covered by the selected policy"}}}.Err()
	})
}

// UpdateHospitalization replaces the hospitalization details. Any manual
// edit to the hospital address supersedes any address lookup still in flight.
func (w *WizardController) UpdateHospitalization(session *SessionStore, details HospitalizationDetails) error {
	return w.mutateStep(session, WizardDetailEntry, "hospitalization", func(view sessionView) error {
		details.AdmissionDate = cloneTime(details.AdmissionDate)
		details.DischargeDate = cloneTime(details.DischargeDate)
		if addressEdited(view.draft.Hospitalization, details) {
			session.addressSeq++
		}
		view.draft.Hospitalization = details
		return nil
	})
}

func addressEdited(current, next HospitalizationDetails) bool {
	return strings.TrimSpace(current.HospitalPincode) != strings.TrimSpace(next.HospitalPincode) ||
		strings.TrimSpace(current.HospitalCity) != strings.TrimSpace(next.HospitalCity) ||
		strings.TrimSpace(current.HospitalState) != strings.TrimSpace(next.HospitalState)
}

func (w *WizardController) UpdateContact(session *SessionStore, contact ClaimantContact) error {
	return w.mutateStep(session, WizardDetailEntry, "contact", func(view sessionView) error {
		view.draft.Contact = ClaimantContact{
			Mobile: strings.TrimSpace(contact.Mobile),
			Email:  strings.TrimSpace(contact.Email),
		}
		return nil
	})
}

func (w *WizardController) AttachDocument(session *SessionStore, document DocumentHandle) error {
	return w.mutateStep(session, WizardDetailEntry, FieldFileURL, func(view sessionView) error {
		view.draft.Document = document
		return nil
	})
}

// EnterPincode records the hospital pincode and, once it is complete, looks
// up city and state. Lookup failures come back in the resolution warning.
func (w *WizardController) EnterPincode(ctx context.Context, session *SessionStore, pincode string) (AddressResolution, error) {
	pincode = strings.TrimSpace(pincode)
	err := w.mutateStep(session, WizardDetailEntry, FieldHospitalPincode, func(view sessionView) error {
		view.draft.Hospitalization.HospitalPincode = pincode
		return nil
	})
	if err != nil {
		return AddressResolution{}, err
	}
	if w == nil || w.address == nil {
		return AddressResolution{Pincode: pincode, Status: AddressSkipped}, nil
	}
	return w.address.Resolve(ctx, session, pincode)
}

func (w *WizardController) mutateStep(session *SessionStore, owner WizardState, field string, fn func(view sessionView) error) error {
	if session == nil {
		return ErrSessionMissing
	}
	err := session.mutate(func(view sessionView) error {
		switch {
		case view.state == WizardTerminal:
			return ErrWizardTerminal
		case view.submission.Locked():
			return ErrDraftLocked
		case view.state != owner:
			return fmt.Errorf("%w: %s is edited at %s", ErrWrongStep, field, owner)
		}
		return fn(view)
	})
	if errors.Is(err, ErrWizardTerminal) || errors.Is(err, ErrDraftLocked) || errors.Is(err, ErrWrongStep) {
		return newWizardStateError(err, session.State())
	}
	return err
}

// ReviewSummary is the read-only projection shown at the review step.
type ReviewSummary struct {
	SessionID    string          `json:"session_id"`
	DraftID      string          `json:"draft_id"`
	State        WizardState     `json:"state"`
	Step         int             `json:"step"`
	Outcome      TerminalOutcome `json:"outcome,omitempty"`
	Payload      ClaimPayload    `json:"payload"`
	Dependents   []PatientRef    `json:"dependents,omitempty"`
	Document     DocumentHandle  `json:"document"`
	Phase        SubmissionPhase `json:"phase,omitempty"`
	InFlight     bool            `json:"in_flight"`
	InsurerAckID string          `json:"insurer_ack_id,omitempty"`
	ClaimID      string          `json:"claim_id,omitempty"`
	Banner       string          `json:"banner,omitempty"`
	Warning      string          `json:"warning,omitempty"`
}

// Summary projects the session without side effects.
func (w *WizardController) Summary(session *SessionStore) ReviewSummary {
	if session == nil {
		return ReviewSummary{}
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	summary := ReviewSummary{
		SessionID:    session.id,
		DraftID:      session.draftID,
		State:        session.state,
		Step:         session.state.StepIndex(),
		Outcome:      session.outcome,
		Payload:      NewClaimPayload(session.draft),
		Dependents:   append([]PatientRef(nil), session.dependents...),
		Document:     session.draft.Document,
		Phase:        session.submission.Phase,
		InFlight:     session.submission.InFlight,
		InsurerAckID: session.submission.InsurerAckID,
		ClaimID:      session.submission.ClaimID,
		Banner:       ReviewBanner(session.submission.LastError),
	}
	if session.warning != nil {
		summary.Warning = session.warning.Error()
	}
	return summary
}
