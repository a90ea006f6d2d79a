package claimintake

import (
	"fmt"

	claimcommand "github.com/goliatone/go-claimintake/command"
	"github.com/goliatone/go-claimintake/core"
	claimquery "github.com/goliatone/go-claimintake/query"
)

type CommandQueryService interface {
	claimcommand.SessionService
	claimcommand.SubmissionService
	claimquery.SessionReader
	claimquery.LedgerReader
}

type Commands struct {
	StartSession          *claimcommand.StartSessionCommand
	CloseSession          *claimcommand.CloseSessionCommand
	ResumeSession         *claimcommand.ResumeSessionCommand
	SelectPolicy          *claimcommand.SelectPolicyCommand
	SetClaimType          *claimcommand.SetClaimTypeCommand
	SelectPatient         *claimcommand.SelectPatientCommand
	UpdateHospitalization *claimcommand.UpdateHospitalizationCommand
	UpdateContact         *claimcommand.UpdateContactCommand
	AttachDocument        *claimcommand.AttachDocumentCommand
	EnterPincode          *claimcommand.EnterPincodeCommand
	Advance               *claimcommand.AdvanceCommand
	Retreat               *claimcommand.RetreatCommand
	Abandon               *claimcommand.AbandonCommand
	Submit                *claimcommand.SubmitCommand
	RetryPersistence      *claimcommand.RetryPersistenceCommand
	ReconcilePending      *claimcommand.ReconcilePendingCommand
}

type Queries struct {
	SessionSummary     *claimquery.SessionSummaryQuery
	SubmissionOutcome  *claimquery.SubmissionOutcomeQuery
	LedgerEntry        *claimquery.LedgerEntryQuery
	PendingPersistence *claimquery.PendingPersistenceQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	ledger core.SubmissionLedger
}

// WithLedger overrides the ledger used by the pending persistence query.
func WithLedger(ledger core.SubmissionLedger) FacadeOption {
	return func(options *facadeOptions) {
		options.ledger = ledger
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("claimintake: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	ledger := cfg.ledger
	if ledger == nil {
		ledger = resolveLedger(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		StartSession:          claimcommand.NewStartSessionCommand(service),
		CloseSession:          claimcommand.NewCloseSessionCommand(service),
		ResumeSession:         claimcommand.NewResumeSessionCommand(service),
		SelectPolicy:          claimcommand.NewSelectPolicyCommand(service),
		SetClaimType:          claimcommand.NewSetClaimTypeCommand(service),
		SelectPatient:         claimcommand.NewSelectPatientCommand(service),
		UpdateHospitalization: claimcommand.NewUpdateHospitalizationCommand(service),
		UpdateContact:         claimcommand.NewUpdateContactCommand(service),
		AttachDocument:        claimcommand.NewAttachDocumentCommand(service),
		EnterPincode:          claimcommand.NewEnterPincodeCommand(service),
		Advance:               claimcommand.NewAdvanceCommand(service),
		Retreat:               claimcommand.NewRetreatCommand(service),
		Abandon:               claimcommand.NewAbandonCommand(service),
		Submit:                claimcommand.NewSubmitCommand(service),
		RetryPersistence:      claimcommand.NewRetryPersistenceCommand(service),
		ReconcilePending:      claimcommand.NewReconcilePendingCommand(service),
	}
	facade.queries = Queries{
		SessionSummary:    claimquery.NewSessionSummaryQuery(service),
		SubmissionOutcome: claimquery.NewSubmissionOutcomeQuery(service),
		LedgerEntry:       claimquery.NewLedgerEntryQuery(service),
	}
	if ledger != nil {
		facade.queries.PendingPersistence = claimquery.NewPendingPersistenceQuery(ledger)
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveLedger(service CommandQueryService) core.SubmissionLedger {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	return provider.Dependencies().SubmissionLedger
}
