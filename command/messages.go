package command

import (
	"strings"

	"github.com/goliatone/go-claimintake/core"
)

const (
	TypeStartSession          = "claimintake.command.session.start"
	TypeCloseSession          = "claimintake.command.session.close"
	TypeResumeSession         = "claimintake.command.session.resume"
	TypeSelectPolicy          = "claimintake.command.draft.select_policy"
	TypeSetClaimType          = "claimintake.command.draft.set_claim_type"
	TypeSelectPatient         = "claimintake.command.draft.select_patient"
	TypeUpdateHospitalization = "claimintake.command.draft.update_hospitalization"
	TypeUpdateContact         = "claimintake.command.draft.update_contact"
	TypeAttachDocument        = "claimintake.command.draft.attach_document"
	TypeEnterPincode          = "claimintake.command.draft.enter_pincode"
	TypeAdvance               = "claimintake.command.wizard.advance"
	TypeRetreat               = "claimintake.command.wizard.retreat"
	TypeAbandon               = "claimintake.command.wizard.abandon"
	TypeSubmit                = "claimintake.command.submission.submit"
	TypeRetryPersistence      = "claimintake.command.submission.retry_persistence"
	TypeReconcilePending      = "claimintake.command.submission.reconcile_pending"
)

type StartSessionMessage struct{}

func (StartSessionMessage) Type() string { return TypeStartSession }

func (StartSessionMessage) Validate() error { return nil }

type CloseSessionMessage struct {
	SessionID string
}

func (CloseSessionMessage) Type() string { return TypeCloseSession }

func (m CloseSessionMessage) Validate() error { return validateSessionID(m.SessionID) }

type ResumeSessionMessage struct {
	DraftID string
}

func (ResumeSessionMessage) Type() string { return TypeResumeSession }

func (m ResumeSessionMessage) Validate() error {
	if strings.TrimSpace(m.DraftID) == "" {
		return commandValidationError("draft_id", "draft id is required")
	}
	return nil
}

type SelectPolicyMessage struct {
	SessionID string
	Policy    core.PolicySelection
}

func (SelectPolicyMessage) Type() string { return TypeSelectPolicy }

func (m SelectPolicyMessage) Validate() error {
	if err := validateSessionID(m.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(m.Policy.PolicyID) == "" {
		return commandValidationError("policy_id", "policy id is required")
	}
	return nil
}

type SetClaimTypeMessage struct {
	SessionID string
	ClaimType core.ClaimType
}

func (SetClaimTypeMessage) Type() string { return TypeSetClaimType }

func (m SetClaimTypeMessage) Validate() error {
	if err := validateSessionID(m.SessionID); err != nil {
		return err
	}
	if !m.ClaimType.Valid() {
		return commandValidationError("claim_type", "claim type must be intimation or reimbursement")
	}
	return nil
}

type SelectPatientMessage struct {
	SessionID string
	UHID      string
}

func (SelectPatientMessage) Type() string { return TypeSelectPatient }

func (m SelectPatientMessage) Validate() error {
	if err := validateSessionID(m.SessionID); err != nil {
		return err
	}
	if strings.TrimSpace(m.UHID) == "" {
		return commandValidationError("uhid", "patient uhid is required")
	}
	return nil
}

type UpdateHospitalizationMessage struct {
	SessionID string
	Details   core.HospitalizationDetails
}

func (UpdateHospitalizationMessage) Type() string { return TypeUpdateHospitalization }

func (m UpdateHospitalizationMessage) Validate() error { return validateSessionID(m.SessionID) }

type UpdateContactMessage struct {
	SessionID string
	Contact   core.ClaimantContact
}

func (UpdateContactMessage) Type() string { return TypeUpdateContact }

func (m UpdateContactMessage) Validate() error { return validateSessionID(m.SessionID) }

type AttachDocumentMessage struct {
	SessionID string
	Document  core.DocumentHandle
}

func (AttachDocumentMessage) Type() string { return TypeAttachDocument }

func (m AttachDocumentMessage) Validate() error { return validateSessionID(m.SessionID) }

type EnterPincodeMessage struct {
	SessionID string
	Pincode   string
}

func (EnterPincodeMessage) Type() string { return TypeEnterPincode }

func (m EnterPincodeMessage) Validate() error { return validateSessionID(m.SessionID) }

type AdvanceMessage struct {
	SessionID string
}

func (AdvanceMessage) Type() string { return TypeAdvance }

func (m AdvanceMessage) Validate() error { return validateSessionID(m.SessionID) }

type RetreatMessage struct {
	SessionID string
}

func (RetreatMessage) Type() string { return TypeRetreat }

func (m RetreatMessage) Validate() error { return validateSessionID(m.SessionID) }

type AbandonMessage struct {
	SessionID string
}

func (AbandonMessage) Type() string { return TypeAbandon }

func (m AbandonMessage) Validate() error { return validateSessionID(m.SessionID) }

type SubmitMessage struct {
	SessionID string
}

func (SubmitMessage) Type() string { return TypeSubmit }

func (m SubmitMessage) Validate() error { return validateSessionID(m.SessionID) }

type RetryPersistenceMessage struct {
	SessionID string
}

func (RetryPersistenceMessage) Type() string { return TypeRetryPersistence }

func (m RetryPersistenceMessage) Validate() error { return validateSessionID(m.SessionID) }

type ReconcilePendingMessage struct {
	BatchSize int
}

func (ReconcilePendingMessage) Type() string { return TypeReconcilePending }

func (m ReconcilePendingMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

func validateSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return commandValidationError("session_id", "session id is required")
	}
	return nil
}
