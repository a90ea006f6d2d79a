package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// InFlightGuard allows one submission sequence per draft at a time. The
// coordinator and the reconciler share one guard.
type InFlightGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewInFlightGuard() *InFlightGuard {
	return &InFlightGuard{held: map[string]struct{}{}}
}

func (g *InFlightGuard) TryAcquire(draftID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[draftID]; ok {
		return false
	}
	g.held[draftID] = struct{}{}
	return true
}

func (g *InFlightGuard) Release(draftID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, draftID)
}

func (g *InFlightGuard) Held(draftID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.held[draftID]
	return ok
}

type submissionOutcome struct {
	result SubmissionResult
	err    error
}

type pendingSubmission struct {
	done      chan struct{}
	outcome   submissionOutcome
	forgotten bool
}

type SubmissionCoordinator struct {
	insurer InsurerAPI
	local   LocalRecordAPI
	ledger  SubmissionLedger
	guard   *InFlightGuard
	config  SubmissionConfig
	backoff ReconcileConfig
	logger  Logger
	now     func() time.Time

	mu           sync.Mutex
	pending      map[string]*pendingSubmission
	outcomes     map[string]submissionOutcome
	outcomeOrder []string
}

func NewSubmissionCoordinator(
	insurer InsurerAPI,
	local LocalRecordAPI,
	ledger SubmissionLedger,
	guard *InFlightGuard,
	config Config,
) (*SubmissionCoordinator, error) {
	if insurer == nil {
		return nil, fmt.Errorf("core: insurer api is required")
	}
	if local == nil {
		return nil, fmt.Errorf("core: local record api is required")
	}
	if ledger == nil {
		ledger = NewMemorySubmissionLedger()
	}
	if guard == nil {
		guard = NewInFlightGuard()
	}
	defaults := DefaultConfig()
	if config.Submission.InsurerTimeout <= 0 {
		config.Submission.InsurerTimeout = defaults.Submission.InsurerTimeout
	}
	if config.Submission.PersistenceTimeout <= 0 {
		config.Submission.PersistenceTimeout = defaults.Submission.PersistenceTimeout
	}
	if config.Reconcile.InitialBackoff <= 0 {
		config.Reconcile.InitialBackoff = defaults.Reconcile.InitialBackoff
	}
	if config.Reconcile.MaxBackoff <= 0 {
		config.Reconcile.MaxBackoff = defaults.Reconcile.MaxBackoff
	}
	if config.Submission.RetainedOutcomes <= 0 {
		config.Submission.RetainedOutcomes = defaults.Submission.RetainedOutcomes
	}
	return &SubmissionCoordinator{
		insurer:  insurer,
		local:    local,
		ledger:   ledger,
		guard:    guard,
		config:   config.Submission,
		backoff:  config.Reconcile,
		now:      func() time.Time { return time.Now().UTC() },
		pending:  map[string]*pendingSubmission{},
		outcomes: map[string]submissionOutcome{},
	}, nil
}

// Submit runs phase 1 then phase 2 for the session draft. When the insurer
// already accepted the draft only phase 2 runs, with the stored ack id.
//
// The sequence runs on a context detached from ctx. If ctx ends first Submit
// returns a SubmissionUnresolved error and the sequence keeps running; its
// outcome is available from AwaitOutcome and PendingOutcome.
//
// An insurer rejection returns a Rejected result together with an
// InsurerRejection error.
func (c *SubmissionCoordinator) Submit(ctx context.Context, session *SessionStore) (SubmissionResult, error) {
	if c == nil {
		return SubmissionResult{}, fmt.Errorf("core: submission coordinator is not configured")
	}
	if session == nil {
		return SubmissionResult{}, ErrSessionMissing
	}
	if ctx == nil {
		ctx = context.Background()
	}

	draftID := session.DraftID()
	if strings.TrimSpace(draftID) == "" {
		return SubmissionResult{}, ErrSessionMissing
	}
	if !c.guard.TryAcquire(draftID) {
		err := &SubmissionError{Kind: SubmissionConcurrentRejected, DraftID: draftID}
		noteSubmissionError(session, err)
		return SubmissionResult{}, err
	}

	plan, err := c.plan(ctx, session)
	if err != nil {
		c.guard.Release(draftID)
		return SubmissionResult{}, err
	}

	pending := &pendingSubmission{done: make(chan struct{})}
	c.mu.Lock()
	c.pending[draftID] = pending
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		outcome := c.run(detached, session, plan)
		c.mu.Lock()
		pending.outcome = outcome
		if !pending.forgotten {
			c.retainOutcomeLocked(draftID, outcome)
		}
		delete(c.pending, draftID)
		c.mu.Unlock()
		c.guard.Release(draftID)
		close(pending.done)
	}()

	select {
	case <-pending.done:
		return pending.outcome.result, pending.outcome.err
	case <-ctx.Done():
		err := &SubmissionError{
			Kind:    SubmissionUnresolved,
			DraftID: draftID,
			Reason:  "caller stopped waiting before the submission finished",
			Cause:   ctx.Err(),
		}
		noteSubmissionError(session, err)
		return SubmissionResult{}, err
	}
}

// noteSubmissionError records err for the review banner while the session is
// still open. The running sequence overwrites it when it settles.
func noteSubmissionError(session *SessionStore, err error) {
	session.withLock(func() {
		if session.cleared || session.state == WizardTerminal {
			return
		}
		if subErr, ok := AsSubmissionError(err); ok && subErr.Kind == SubmissionUnresolved && !session.submission.InFlight {
			return
		}
		session.submission.LastError = err
	})
}

// RetryPersistence runs phase 2 only. It fails unless the insurer has
// accepted the draft.
func (c *SubmissionCoordinator) RetryPersistence(ctx context.Context, session *SessionStore) (SubmissionResult, error) {
	if session == nil {
		return SubmissionResult{}, ErrSessionMissing
	}
	state := session.Submission()
	if state.Phase != SubmissionPhaseInsurerAccepted || state.InsurerAckID == "" {
		entry, err := c.ledger.Get(ctx, session.DraftID())
		if err != nil || !entry.Phase.AwaitingPersistence() {
			return SubmissionResult{}, fmt.Errorf("core: draft has no insurer acceptance to persist")
		}
	}
	return c.Submit(ctx, session)
}

// AwaitOutcome blocks until the sequence for draftID finishes or ctx ends.
func (c *SubmissionCoordinator) AwaitOutcome(ctx context.Context, draftID string) (SubmissionResult, error) {
	c.mu.Lock()
	pending, inFlight := c.pending[draftID]
	outcome, known := c.outcomes[draftID]
	c.mu.Unlock()
	if !inFlight {
		if !known {
			return SubmissionResult{}, fmt.Errorf("core: no submission recorded for draft %s", draftID)
		}
		return outcome.result, outcome.err
	}
	select {
	case <-pending.done:
		return pending.outcome.result, pending.outcome.err
	case <-ctx.Done():
		return SubmissionResult{}, &SubmissionError{Kind: SubmissionUnresolved, DraftID: draftID, Cause: ctx.Err()}
	}
}

// PendingOutcome reports the last finished outcome for draftID without
// blocking. done is false while a sequence is still running.
func (c *SubmissionCoordinator) PendingOutcome(draftID string) (result SubmissionResult, err error, done bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, inFlight := c.pending[draftID]; inFlight {
		return SubmissionResult{}, nil, false
	}
	outcome, known := c.outcomes[draftID]
	if !known {
		return SubmissionResult{}, nil, false
	}
	return outcome.result, outcome.err, true
}

func (c *SubmissionCoordinator) InFlight(draftID string) bool {
	return c.guard.Held(draftID)
}

// Forget drops the retained outcome for draftID. A sequence still running
// finishes normally but its outcome is not retained.
func (c *SubmissionCoordinator) Forget(draftID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if pending, ok := c.pending[draftID]; ok {
		pending.forgotten = true
	}
	if _, ok := c.outcomes[draftID]; !ok {
		return
	}
	delete(c.outcomes, draftID)
	for i, id := range c.outcomeOrder {
		if id == draftID {
			c.outcomeOrder = append(c.outcomeOrder[:i], c.outcomeOrder[i+1:]...)
			break
		}
	}
}

func (c *SubmissionCoordinator) retainedOutcomes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

// retainOutcomeLocked keeps at most config.RetainedOutcomes outcomes and
// evicts the oldest first.
func (c *SubmissionCoordinator) retainOutcomeLocked(draftID string, outcome submissionOutcome) {
	if _, ok := c.outcomes[draftID]; !ok {
		c.outcomeOrder = append(c.outcomeOrder, draftID)
	}
	c.outcomes[draftID] = outcome
	limit := c.config.RetainedOutcomes
	if limit <= 0 {
		limit = defaultRetainedOutcomes
	}
	for len(c.outcomeOrder) > limit {
		oldest := c.outcomeOrder[0]
		c.outcomeOrder = c.outcomeOrder[1:]
		delete(c.outcomes, oldest)
	}
}

type submissionPlan struct {
	draftID      string
	token        string
	payload      ClaimPayload
	insurerAckID string
	phase2Only   bool
	// persistedClaimID is set when the ledger already holds the local claim.
	persistedClaimID string
}

func (c *SubmissionCoordinator) plan(ctx context.Context, session *SessionStore) (submissionPlan, error) {
	var (
		plan    submissionPlan
		planErr error
	)
	session.withLock(func() {
		if session.cleared || session.state != WizardReview {
			planErr = newWizardStateError(fmt.Errorf("%w: submit is only allowed at review", ErrWrongStep), session.state)
			return
		}
		plan.draftID = session.draft.ID
		plan.token = session.draft.IdempotencyToken
		plan.payload = NewClaimPayload(session.draft)
		if session.submission.Phase == SubmissionPhaseInsurerAccepted && session.submission.InsurerAckID != "" {
			plan.phase2Only = true
			plan.insurerAckID = session.submission.InsurerAckID
			if session.submission.Payload != nil {
				plan.payload = *session.submission.Payload
			}
		}
		session.submission.InFlight = true
		session.submission.LastError = nil
	})
	if planErr != nil {
		return plan, planErr
	}

	entry, err := c.ledger.Get(ctx, plan.draftID)
	switch {
	case err == nil && entry.Phase == SubmissionPhasePersisted && entry.ClaimID != "":
		plan.persistedClaimID = entry.ClaimID
		plan.insurerAckID = firstNonEmpty(entry.InsurerAckID, plan.insurerAckID)
	case err == nil && entry.Phase == SubmissionPhasePersisted:
		planErr = fmt.Errorf("core: draft %s is persisted without a claim id", plan.draftID)
	case err == nil && !plan.phase2Only && entry.Phase.AwaitingPersistence() && entry.InsurerAckID != "":
		plan.phase2Only = true
		plan.insurerAckID = entry.InsurerAckID
		plan.payload = entry.Payload
	case err != nil && !errors.Is(err, ErrLedgerEntryMissing):
		planErr = fmt.Errorf("core: read submission ledger: %w", err)
	}
	if planErr != nil {
		session.withLock(func() { session.submission.InFlight = false })
		return plan, planErr
	}
	return plan, nil
}

func (c *SubmissionCoordinator) run(ctx context.Context, session *SessionStore, plan submissionPlan) submissionOutcome {
	if plan.persistedClaimID != "" {
		return c.finish(session, plan.persistedClaimID, plan.insurerAckID)
	}
	ackID := plan.insurerAckID
	if !plan.phase2Only {
		var outcome *submissionOutcome
		ackID, outcome = c.phaseOne(ctx, plan)
		if outcome != nil {
			c.settle(session, func(state *SubmissionState) {
				state.LastError = outcome.err
				if subErr, ok := AsSubmissionError(outcome.err); ok && subErr.Kind == SubmissionInsurerRejection {
					state.Phase = SubmissionPhaseInsurerRejected
				} else {
					state.Phase = SubmissionPhaseInsurerUnavailable
				}
			})
			return *outcome
		}
		payload := plan.payload
		c.settle(session, func(state *SubmissionState) {
			state.Phase = SubmissionPhaseInsurerAccepted
			state.InsurerAckID = ackID
			state.Payload = &payload
			state.InFlight = true
		})
	}

	claimID, err := c.phaseTwo(ctx, plan, ackID)
	if err != nil {
		c.settle(session, func(state *SubmissionState) {
			state.Phase = SubmissionPhaseInsurerAccepted
			state.InsurerAckID = ackID
			state.LastError = err
		})
		return submissionOutcome{err: err}
	}
	return c.finish(session, claimID, ackID)
}

// finish moves the session to terminal success and clears the draft.
func (c *SubmissionCoordinator) finish(session *SessionStore, claimID, ackID string) submissionOutcome {
	result, err := NewAcceptedResult(claimID, ackID)
	if err != nil {
		c.settle(session, func(state *SubmissionState) { state.LastError = err })
		return submissionOutcome{err: err}
	}
	session.withLock(func() {
		session.submission = SubmissionState{
			Phase:        SubmissionPhasePersisted,
			InsurerAckID: ackID,
			ClaimID:      claimID,
		}
		session.result = result
		session.state = WizardTerminal
		session.outcome = TerminalSuccess
		session.clearLocked()
	})
	return submissionOutcome{result: result}
}

// phaseOne returns the insurer ack id, or a terminal outcome when phase 2
// must not run.
func (c *SubmissionCoordinator) phaseOne(ctx context.Context, plan submissionPlan) (string, *submissionOutcome) {
	if err := c.ledger.Save(ctx, LedgerEntry{
		DraftID:          plan.draftID,
		IdempotencyToken: plan.token,
		Phase:            SubmissionPhasePending,
		Payload:          plan.payload,
	}); err != nil {
		return "", &submissionOutcome{err: &SubmissionError{
			Kind:    SubmissionInsurerUnavailable,
			Phase:   1,
			DraftID: plan.draftID,
			Reason:  "submission ledger unavailable",
			Cause:   err,
		}}
	}

	callCtx, cancel := context.WithTimeout(ctx, c.config.InsurerTimeout)
	resp, err := c.insurer.SubmitClaim(callCtx, plan.payload)
	cancel()

	ackID := strings.TrimSpace(resp.ClaimAckID)
	switch {
	case err != nil:
		c.saveLedger(ctx, plan, SubmissionPhaseInsurerUnavailable, "", "", err.Error())
		return "", &submissionOutcome{err: &SubmissionError{
			Kind:    SubmissionInsurerUnavailable,
			Phase:   1,
			DraftID: plan.draftID,
			Cause:   err,
		}}
	case !resp.Success:
		reason := strings.TrimSpace(resp.Message)
		c.saveLedger(ctx, plan, SubmissionPhaseInsurerRejected, "", "", reason)
		return "", &submissionOutcome{
			result: NewRejectedResult(reason),
			err: &SubmissionError{
				Kind:    SubmissionInsurerRejection,
				Phase:   1,
				DraftID: plan.draftID,
				Reason:  reason,
			},
		}
	case ackID == "":
		c.saveLedger(ctx, plan, SubmissionPhaseInsurerUnavailable, "", "", "insurer returned no ack id")
		return "", &submissionOutcome{err: &SubmissionError{
			Kind:    SubmissionInsurerUnavailable,
			Phase:   1,
			DraftID: plan.draftID,
			Reason:  "insurer accepted without an ack id",
		}}
	}

	c.saveLedger(ctx, plan, SubmissionPhaseInsurerAccepted, ackID, "", "")
	return ackID, nil
}

func (c *SubmissionCoordinator) phaseTwo(ctx context.Context, plan submissionPlan, ackID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.PersistenceTimeout)
	resp, err := c.local.PersistClaim(callCtx, LocalClaimRecord{
		ClaimPayload: plan.payload,
		InsurerAckID: ackID,
	})
	cancel()

	claimID := strings.TrimSpace(resp.ClaimID)
	if err == nil && (!resp.Success || claimID == "") {
		err = fmt.Errorf("core: local record rejected: %s", firstNonEmpty(resp.Message, "no claim id returned"))
	}
	if err != nil {
		c.scheduleReconcile(ctx, plan, ackID, err)
		return "", &SubmissionError{
			Kind:         SubmissionPersistenceFailureAfterAck,
			Phase:        2,
			DraftID:      plan.draftID,
			InsurerAckID: ackID,
			Cause:        err,
		}
	}
	c.saveLedger(ctx, plan, SubmissionPhasePersisted, ackID, claimID, "")
	return claimID, nil
}

func (c *SubmissionCoordinator) scheduleReconcile(ctx context.Context, plan submissionPlan, ackID string, cause error) {
	entry, err := c.ledger.Get(ctx, plan.draftID)
	if err != nil {
		entry = LedgerEntry{DraftID: plan.draftID, IdempotencyToken: plan.token, Payload: plan.payload}
	}
	entry.Phase = SubmissionPhaseInsurerAccepted
	entry.InsurerAckID = ackID
	entry.Attempts++
	entry.LastError = cause.Error()
	if entry.Attempts < c.maxAttempts() {
		next := c.now().Add(backoffDelay(c.backoff, entry.Attempts))
		entry.NextAttemptAt = &next
	} else {
		entry.NextAttemptAt = nil
	}
	if err := c.ledger.Save(ctx, entry); err != nil {
		c.logWarn("submission ledger save failed", "draft_id", plan.draftID, "error", err)
	}
}

func (c *SubmissionCoordinator) saveLedger(ctx context.Context, plan submissionPlan, phase SubmissionPhase, ackID, claimID, lastError string) {
	entry, err := c.ledger.Get(ctx, plan.draftID)
	if err != nil {
		entry = LedgerEntry{DraftID: plan.draftID, IdempotencyToken: plan.token}
	}
	entry.Phase = phase
	entry.Payload = plan.payload
	entry.InsurerAckID = ackID
	entry.ClaimID = claimID
	entry.LastError = lastError
	entry.NextAttemptAt = nil
	if phase == SubmissionPhaseInsurerAccepted {
		next := c.now()
		entry.NextAttemptAt = &next
	}
	if err := c.ledger.Save(ctx, entry); err != nil {
		c.logWarn("submission ledger save failed", "draft_id", plan.draftID, "phase", string(phase), "error", err)
	}
}

func (c *SubmissionCoordinator) settle(session *SessionStore, fn func(state *SubmissionState)) {
	session.withLock(func() {
		state := session.submission
		state.InFlight = false
		fn(&state)
		session.submission = state
	})
}

func (c *SubmissionCoordinator) maxAttempts() int {
	if c.backoff.MaxAttempts <= 0 {
		return DefaultConfig().Reconcile.MaxAttempts
	}
	return c.backoff.MaxAttempts
}

func (c *SubmissionCoordinator) logWarn(msg string, args ...any) {
	if c == nil || c.logger == nil {
		return
	}
	c.logger.Warn(msg, args...)
}
