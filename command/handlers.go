package command

import (
	"context"

	"github.com/goliatone/go-claimintake/core"
	gocmd "github.com/goliatone/go-command"
)

// SessionService is the wizard surface of core.Service.
type SessionService interface {
	StartSession(ctx context.Context) (core.ReviewSummary, error)
	CloseSession(ctx context.Context, sessionID string) error
	SelectPolicy(ctx context.Context, sessionID string, policy core.PolicySelection) error
	SetClaimType(ctx context.Context, sessionID string, claimType core.ClaimType) error
	SelectPatient(ctx context.Context, sessionID string, uhid string) error
	UpdateHospitalization(ctx context.Context, sessionID string, details core.HospitalizationDetails) error
	UpdateContact(ctx context.Context, sessionID string, contact core.ClaimantContact) error
	AttachDocument(ctx context.Context, sessionID string, document core.DocumentHandle) error
	EnterPincode(ctx context.Context, sessionID string, pincode string) (core.AddressResolution, error)
	Advance(ctx context.Context, sessionID string) (core.Transition, error)
	Retreat(ctx context.Context, sessionID string) (core.Transition, error)
	Abandon(ctx context.Context, sessionID string) error
}

// SubmissionService is the submission surface of core.Service.
type SubmissionService interface {
	Submit(ctx context.Context, sessionID string) (core.SubmissionResult, error)
	RetryPersistence(ctx context.Context, sessionID string) (core.SubmissionResult, error)
	ResumeSession(ctx context.Context, draftID string) (core.ReviewSummary, error)
	ReconcilePending(ctx context.Context, batchSize int) (core.ReconcileStats, error)
}

type StartSessionCommand struct {
	service SessionService
}

func NewStartSessionCommand(service SessionService) *StartSessionCommand {
	return &StartSessionCommand{service: service}
}

func (c *StartSessionCommand) Execute(ctx context.Context, _ StartSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	out, err := c.service.StartSession(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CloseSessionCommand struct {
	service SessionService
}

func NewCloseSessionCommand(service SessionService) *CloseSessionCommand {
	return &CloseSessionCommand{service: service}
}

func (c *CloseSessionCommand) Execute(ctx context.Context, msg CloseSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: session service is required")
	}
	return c.service.CloseSession(ctx, msg.SessionID)
}

type SelectPolicyCommand struct {
	service SessionService
}

func NewSelectPolicyCommand(service SessionService) *SelectPolicyCommand {
	return &SelectPolicyCommand{service: service}
}

func (c *SelectPolicyCommand) Execute(ctx context.Context, msg SelectPolicyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: policy selection service is required")
	}
	return c.service.SelectPolicy(ctx, msg.SessionID, msg.Policy)
}

type SetClaimTypeCommand struct {
	service SessionService
}

func NewSetClaimTypeCommand(service SessionService) *SetClaimTypeCommand {
	return &SetClaimTypeCommand{service: service}
}

func (c *SetClaimTypeCommand) Execute(ctx context.Context, msg SetClaimTypeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: claim type service is required")
	}
	return c.service.SetClaimType(ctx, msg.SessionID, msg.ClaimType)
}

type SelectPatientCommand struct {
	service SessionService
}

func NewSelectPatientCommand(service SessionService) *SelectPatientCommand {
	return &SelectPatientCommand{service: service}
}

func (c *SelectPatientCommand) Execute(ctx context.Context, msg SelectPatientMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: patient selection service is required")
	}
	return c.service.SelectPatient(ctx, msg.SessionID, msg.UHID)
}

type UpdateHospitalizationCommand struct {
	service SessionService
}

func NewUpdateHospitalizationCommand(service SessionService) *UpdateHospitalizationCommand {
	return &UpdateHospitalizationCommand{service: service}
}

func (c *UpdateHospitalizationCommand) Execute(ctx context.Context, msg UpdateHospitalizationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: hospitalization service is required")
	}
	return c.service.UpdateHospitalization(ctx, msg.SessionID, msg.Details)
}

type UpdateContactCommand struct {
	service SessionService
}

func NewUpdateContactCommand(service SessionService) *UpdateContactCommand {
	return &UpdateContactCommand{service: service}
}

func (c *UpdateContactCommand) Execute(ctx context.Context, msg UpdateContactMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: contact service is required")
	}
	return c.service.UpdateContact(ctx, msg.SessionID, msg.Contact)
}

type AttachDocumentCommand struct {
	service SessionService
}

func NewAttachDocumentCommand(service SessionService) *AttachDocumentCommand {
	return &AttachDocumentCommand{service: service}
}

func (c *AttachDocumentCommand) Execute(ctx context.Context, msg AttachDocumentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: document service is required")
	}
	return c.service.AttachDocument(ctx, msg.SessionID, msg.Document)
}

type EnterPincodeCommand struct {
	service SessionService
}

func NewEnterPincodeCommand(service SessionService) *EnterPincodeCommand {
	return &EnterPincodeCommand{service: service}
}

func (c *EnterPincodeCommand) Execute(ctx context.Context, msg EnterPincodeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: address service is required")
	}
	out, err := c.service.EnterPincode(ctx, msg.SessionID, msg.Pincode)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AdvanceCommand struct {
	service SessionService
}

func NewAdvanceCommand(service SessionService) *AdvanceCommand {
	return &AdvanceCommand{service: service}
}

// Execute stores the transition even when validation fails, so callers can
// render field errors.
func (c *AdvanceCommand) Execute(ctx context.Context, msg AdvanceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: wizard service is required")
	}
	out, err := c.service.Advance(ctx, msg.SessionID)
	storeResult(ctx, out)
	return err
}

type RetreatCommand struct {
	service SessionService
}

func NewRetreatCommand(service SessionService) *RetreatCommand {
	return &RetreatCommand{service: service}
}

func (c *RetreatCommand) Execute(ctx context.Context, msg RetreatMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: wizard service is required")
	}
	out, err := c.service.Retreat(ctx, msg.SessionID)
	storeResult(ctx, out)
	return err
}

type AbandonCommand struct {
	service SessionService
}

func NewAbandonCommand(service SessionService) *AbandonCommand {
	return &AbandonCommand{service: service}
}

func (c *AbandonCommand) Execute(ctx context.Context, msg AbandonMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: wizard service is required")
	}
	return c.service.Abandon(ctx, msg.SessionID)
}

type SubmitCommand struct {
	service SubmissionService
}

func NewSubmitCommand(service SubmissionService) *SubmitCommand {
	return &SubmitCommand{service: service}
}

// Execute stores the result on failure too; a rejection carries its reason.
func (c *SubmitCommand) Execute(ctx context.Context, msg SubmitMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.Submit(ctx, msg.SessionID)
	storeResult(ctx, out)
	return err
}

type RetryPersistenceCommand struct {
	service SubmissionService
}

func NewRetryPersistenceCommand(service SubmissionService) *RetryPersistenceCommand {
	return &RetryPersistenceCommand{service: service}
}

func (c *RetryPersistenceCommand) Execute(ctx context.Context, msg RetryPersistenceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.RetryPersistence(ctx, msg.SessionID)
	storeResult(ctx, out)
	return err
}

type ResumeSessionCommand struct {
	service SubmissionService
}

func NewResumeSessionCommand(service SubmissionService) *ResumeSessionCommand {
	return &ResumeSessionCommand{service: service}
}

func (c *ResumeSessionCommand) Execute(ctx context.Context, msg ResumeSessionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: submission service is required")
	}
	out, err := c.service.ResumeSession(ctx, msg.DraftID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcilePendingCommand struct {
	service SubmissionService
}

func NewReconcilePendingCommand(service SubmissionService) *ReconcilePendingCommand {
	return &ReconcilePendingCommand{service: service}
}

func (c *ReconcilePendingCommand) Execute(ctx context.Context, msg ReconcilePendingMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconcile service is required")
	}
	out, err := c.service.ReconcilePending(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
