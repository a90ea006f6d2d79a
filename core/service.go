package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	insurer           InsurerAPI
	localRecord       LocalRecordAPI
	postalLookup      PostalLookup
	dependents        PolicyDependents
	ledger            SubmissionLedger
	guard             *InFlightGuard
	clock             func() time.Time
	sessions          *SessionRegistry
	wizard            *WizardController
	coordinator       *SubmissionCoordinator
	reconciler        *PersistenceReconciler
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	InsurerAPI        InsurerAPI
	LocalRecordAPI    LocalRecordAPI
	PostalLookup      PostalLookup
	PolicyDependents  PolicyDependents
	SubmissionLedger  SubmissionLedger
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("claimintake", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("claimintake"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if builder.guard == nil {
		builder.guard = NewInFlightGuard()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.ledger == nil || builder.localRecord == nil) && builder.repositoryFactory != nil {
		var stores StoreProvider
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			built, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			stores = built
		} else if direct, ok := builder.repositoryFactory.(StoreProvider); ok {
			stores = direct
		}
		if stores != nil {
			if builder.ledger == nil {
				builder.ledger = stores.SubmissionLedger()
			}
			if builder.localRecord == nil {
				builder.localRecord = stores.LocalRecordAPI()
			}
		}
	}
	if builder.ledger == nil {
		builder.ledger = NewMemorySubmissionLedger()
	}

	svc := &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		insurer:           builder.insurer,
		localRecord:       builder.localRecord,
		postalLookup:      builder.postalLookup,
		dependents:        builder.dependents,
		ledger:            builder.ledger,
		guard:             builder.guard,
		clock:             builder.clock,
		sessions:          NewSessionRegistry(),
	}

	if svc.insurer != nil && svc.localRecord != nil {
		coordinator, coordErr := NewSubmissionCoordinator(svc.insurer, svc.localRecord, svc.ledger, svc.guard, finalConfig)
		if coordErr != nil {
			return nil, mapBuildError(builder.errorMapper, coordErr)
		}
		coordinator.logger = logger
		coordinator.now = svc.clock
		svc.coordinator = coordinator
	}
	if svc.localRecord != nil {
		reconciler, recErr := NewPersistenceReconciler(svc.ledger, svc.localRecord, svc.guard, finalConfig)
		if recErr != nil {
			return nil, mapBuildError(builder.errorMapper, recErr)
		}
		reconciler.now = svc.clock
		reconciler.OnPersisted(svc.completeFromLedger)
		svc.reconciler = reconciler
	}

	location, err := finalConfig.Validation.Location()
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	gate := NewValidationGate(finalConfig.Address.PincodeLength)
	gate.Now = svc.clock
	gate.Location = location
	svc.wizard = NewWizardController(
		gate,
		NewDependentDirectory(svc.dependents),
		NewAddressResolver(svc.postalLookup, finalConfig.Address.PincodeLength),
		svc.coordinator,
	)
	return svc, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		InsurerAPI:        s.insurer,
		LocalRecordAPI:    s.localRecord,
		PostalLookup:      s.postalLookup,
		PolicyDependents:  s.dependents,
		SubmissionLedger:  s.ledger,
	}
}

func (s *Service) Wizard() *WizardController {
	if s == nil {
		return nil
	}
	return s.wizard
}

func (s *Service) Coordinator() *SubmissionCoordinator {
	if s == nil {
		return nil
	}
	return s.coordinator
}

func (s *Service) Reconciler() *PersistenceReconciler {
	if s == nil {
		return nil
	}
	return s.reconciler
}

// StartSession opens a new wizard session with a fresh draft and token.
func (s *Service) StartSession(ctx context.Context) (summary ReviewSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["session_id"] = summary.SessionID
		s.observeOperation(ctx, startedAt, "start_session", err, fields)
	}()

	session := NewSessionStore(s.clock)
	s.sessions.Put(session)
	fields["draft_id"] = session.DraftID()
	return s.wizard.Summary(session), nil
}

// Session returns the live session, for embedders that drive the
// WizardController directly.
func (s *Service) Session(sessionID string) (*SessionStore, error) {
	if s == nil {
		return nil, ErrSessionMissing
	}
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return session, nil
}

// CloseSession drops the session and, unless another session still owns the
// draft, its retained submission outcome.
func (s *Service) CloseSession(_ context.Context, sessionID string) error {
	if s == nil {
		return ErrSessionMissing
	}
	session, err := s.sessions.Get(sessionID)
	s.sessions.Remove(sessionID)
	if err != nil || s.coordinator == nil {
		return nil
	}
	if _, live := s.sessions.ByDraft(session.DraftID()); !live {
		s.coordinator.Forget(session.DraftID())
	}
	return nil
}

func (s *Service) Summary(_ context.Context, sessionID string) (ReviewSummary, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return ReviewSummary{}, err
	}
	return s.wizard.Summary(session), nil
}

func (s *Service) Advance(ctx context.Context, sessionID string) (transition Transition, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		fields["from_state"] = string(transition.From)
		fields["to_state"] = string(transition.To)
		s.observeOperation(ctx, startedAt, "advance", err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return Transition{}, err
	}
	transition, err = s.wizard.Advance(ctx, session)
	if err != nil {
		err = s.mapError(err)
		return transition, err
	}
	return transition, nil
}

func (s *Service) Retreat(ctx context.Context, sessionID string) (transition Transition, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		fields["from_state"] = string(transition.From)
		fields["to_state"] = string(transition.To)
		s.observeOperation(ctx, startedAt, "retreat", err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return Transition{}, err
	}
	transition, err = s.wizard.Retreat(session)
	if err != nil {
		err = s.mapError(err)
	}
	return transition, err
}

func (s *Service) Abandon(ctx context.Context, sessionID string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		s.observeOperation(ctx, startedAt, "abandon", err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	fields["draft_id"] = session.DraftID()
	if err = s.wizard.Abandon(session); err != nil {
		err = s.mapError(err)
	}
	return err
}

func (s *Service) SelectPolicy(ctx context.Context, sessionID string, policy PolicySelection) error {
	return s.mutate(ctx, "select_policy", sessionID, func(session *SessionStore) error {
		return s.wizard.SelectPolicy(session, policy)
	})
}

func (s *Service) SetClaimType(ctx context.Context, sessionID string, claimType ClaimType) error {
	return s.mutate(ctx, "set_claim_type", sessionID, func(session *SessionStore) error {
		return s.wizard.SetClaimType(session, claimType)
	})
}

func (s *Service) SelectPatient(ctx context.Context, sessionID string, uhid string) error {
	return s.mutate(ctx, "select_patient", sessionID, func(session *SessionStore) error {
		return s.wizard.SelectPatient(session, uhid)
	})
}

func (s *Service) UpdateHospitalization(ctx context.Context, sessionID string, details HospitalizationDetails) error {
	return s.mutate(ctx, "update_hospitalization", sessionID, func(session *SessionStore) error {
		return s.wizard.UpdateHospitalization(session, details)
	})
}

func (s *Service) UpdateContact(ctx context.Context, sessionID string, contact ClaimantContact) error {
	return s.mutate(ctx, "update_contact", sessionID, func(session *SessionStore) error {
		return s.wizard.UpdateContact(session, contact)
	})
}

func (s *Service) AttachDocument(ctx context.Context, sessionID string, document DocumentHandle) error {
	return s.mutate(ctx, "attach_document", sessionID, func(session *SessionStore) error {
		return s.wizard.AttachDocument(session, document)
	})
}

func (s *Service) EnterPincode(ctx context.Context, sessionID string, pincode string) (resolution AddressResolution, err error) {
	err = s.mutate(ctx, "enter_pincode", sessionID, func(session *SessionStore) error {
		var resolveErr error
		resolution, resolveErr = s.wizard.EnterPincode(ctx, session, pincode)
		return resolveErr
	})
	if resolution.Warning != nil {
		s.logWithLevel(ctx, "warn", "address lookup degraded", map[string]any{
			"session_id": sessionID,
			"pincode":    resolution.Pincode,
			"error":      resolution.Warning.Error(),
		})
	}
	return resolution, err
}

func (s *Service) mutate(ctx context.Context, operation string, sessionID string, fn func(session *SessionStore) error) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return err
	}
	if err = fn(session); err != nil {
		err = s.mapError(err)
	}
	return err
}

// Submit runs the two-phase submission for the session draft.
func (s *Service) Submit(ctx context.Context, sessionID string) (result SubmissionResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		fields["outcome"] = string(result.Outcome())
		if accepted, ok := result.Accepted(); ok {
			fields["claim_id"] = accepted.ClaimID
			fields["insurer_ack_id"] = accepted.InsurerAckID
		}
		if subErr, ok := AsSubmissionError(err); ok {
			fields["submission_error"] = string(subErr.Kind)
			fields["submission_phase"] = subErr.Phase
			if subErr.InsurerAckID != "" {
				fields["insurer_ack_id"] = subErr.InsurerAckID
			}
		}
		s.observeOperation(ctx, startedAt, "submit", err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return SubmissionResult{}, err
	}
	fields["draft_id"] = session.DraftID()
	if s.coordinator == nil {
		err = s.mapError(fmt.Errorf("core: submission requires insurer and local record apis"))
		return SubmissionResult{}, err
	}
	result, err = s.wizard.Submit(ctx, session)
	if err != nil {
		err = s.mapError(err)
	}
	return result, err
}

// RetryPersistence re-runs phase 2 only for a draft the insurer accepted.
func (s *Service) RetryPersistence(ctx context.Context, sessionID string) (result SubmissionResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"session_id": sessionID}
	defer func() {
		fields["outcome"] = string(result.Outcome())
		s.observeOperation(ctx, startedAt, "retry_persistence", err, fields)
	}()

	session, err := s.Session(sessionID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if s.coordinator == nil {
		err = s.mapError(fmt.Errorf("core: submission requires insurer and local record apis"))
		return SubmissionResult{}, err
	}
	result, err = s.coordinator.RetryPersistence(ctx, session)
	if err != nil {
		err = s.mapError(err)
	}
	return result, err
}

// AwaitOutcome waits for an unresolved submission of the session draft.
func (s *Service) AwaitOutcome(ctx context.Context, sessionID string) (SubmissionResult, error) {
	session, err := s.Session(sessionID)
	if err != nil {
		return SubmissionResult{}, err
	}
	if s.coordinator == nil {
		return SubmissionResult{}, s.mapError(fmt.Errorf("core: submission requires insurer and local record apis"))
	}
	result, err := s.coordinator.AwaitOutcome(ctx, session.DraftID())
	return result, s.mapError(err)
}

// ResumeSession reopens a draft from the submission ledger at the review
// step, keeping its idempotency token and any insurer ack id.
func (s *Service) ResumeSession(ctx context.Context, draftID string) (summary ReviewSummary, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"draft_id": draftID}
	defer func() {
		fields["session_id"] = summary.SessionID
		s.observeOperation(ctx, startedAt, "resume_session", err, fields)
	}()

	entry, err := s.ledger.Get(ctx, strings.TrimSpace(draftID))
	if err != nil {
		err = s.mapError(err)
		return ReviewSummary{}, err
	}
	if entry.Phase == SubmissionPhasePersisted {
		err = s.mapError(fmt.Errorf("core: draft %s is already persisted", entry.DraftID))
		return ReviewSummary{}, err
	}
	session, err := RestoreSessionStore(entry, draftFromPayload(entry.Payload), s.clock)
	if err != nil {
		err = s.mapError(err)
		return ReviewSummary{}, err
	}
	s.sessions.Put(session)
	return s.wizard.Summary(session), nil
}

// ReconcilePending runs one reconciler batch.
func (s *Service) ReconcilePending(ctx context.Context, batchSize int) (stats ReconcileStats, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"batch_size": batchSize}
	defer func() {
		fields["claimed"] = stats.Claimed
		fields["persisted"] = stats.Persisted
		fields["retried"] = stats.Retried
		fields["exhausted"] = stats.Exhausted
		s.observeOperation(ctx, startedAt, "reconcile_pending", err, fields)
	}()

	if s.reconciler == nil {
		err = s.mapError(fmt.Errorf("core: reconciler requires a local record api"))
		return ReconcileStats{}, err
	}
	stats, err = s.reconciler.ReconcilePending(ctx, batchSize)
	if err != nil {
		err = s.mapError(err)
	}
	return stats, err
}

func (s *Service) LedgerEntry(ctx context.Context, draftID string) (LedgerEntry, error) {
	if s == nil || s.ledger == nil {
		return LedgerEntry{}, fmt.Errorf("core: submission ledger is not configured")
	}
	entry, err := s.ledger.Get(ctx, draftID)
	return entry, s.mapError(err)
}

func (s *Service) completeFromLedger(_ context.Context, entry LedgerEntry) {
	session, ok := s.sessions.ByDraft(entry.DraftID)
	if !ok {
		return
	}
	result, err := NewAcceptedResult(entry.ClaimID, entry.InsurerAckID)
	if err != nil {
		return
	}
	session.withLock(func() {
		if session.state == WizardTerminal {
			return
		}
		session.submission = SubmissionState{
			Phase:        SubmissionPhasePersisted,
			InsurerAckID: entry.InsurerAckID,
			ClaimID:      entry.ClaimID,
		}
		session.result = result
		session.state = WizardTerminal
		session.outcome = TerminalSuccess
		session.clearLocked()
	})
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsSubmissionError(err); ok {
		return err
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func draftFromPayload(payload ClaimPayload) ClaimDraft {
	admission, _ := ParseDate(payload.Hospitalization.AdmissionDate)
	discharge, _ := ParseDate(payload.Hospitalization.DischargeDate)
	draft := ClaimDraft{
		ID: payload.DraftID,
		Policy: PolicySelection{
			PolicyID:     payload.PolicyID,
			PolicyNumber: payload.PolicyNumber,
			InsurerID:    payload.InsurerID,
			TPAID:        payload.TPAID,
		},
		ClaimType: payload.ClaimType,
		Patient:   PatientRef{UHID: payload.PatientRef, InsuredName: payload.PatientName},
		Hospitalization: HospitalizationDetails{
			AdmissionDate:   admission,
			DischargeDate:   discharge,
			HospitalName:    payload.Hospitalization.HospitalName,
			HospitalState:   payload.Hospitalization.HospitalState,
			HospitalCity:    payload.Hospitalization.HospitalCity,
			HospitalPincode: payload.Hospitalization.HospitalPincode,
			Diagnosis:       payload.Hospitalization.Diagnosis,
			ClaimAmount:     payload.Hospitalization.ClaimAmount,
		},
		Contact:          ClaimantContact{Mobile: payload.Mobile, Email: payload.Email},
		IdempotencyToken: payload.IdempotencyToken,
	}
	switch DocumentKind(payload.FileEncoding) {
	case DocumentURL:
		draft.Document = DocumentFromURL(payload.FileURL)
	case DocumentBase64:
		draft.Document = DocumentFromBase64(payload.FileURL)
	}
	return draft
}
