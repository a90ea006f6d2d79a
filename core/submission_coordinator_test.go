package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestSubmit_AcceptedAfterBothPhases(t *testing.T) {
	h := newTestHarness(t)
	sessionID := h.toReview(t)
	session := h.session(t, sessionID)
	token := session.Draft().IdempotencyToken

	result, err := h.svc.Submit(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	accepted, ok := result.Accepted()
	if !ok {
		t.Fatalf("expected accepted result, got %q", result.Outcome())
	}
	if accepted.ClaimID != "CLM-1" || accepted.InsurerAckID != "ACK-1" {
		t.Fatalf("unexpected accepted claim %+v", accepted)
	}
	if _, rejected := result.Rejected(); rejected {
		t.Fatalf("accepted result must not carry a rejection")
	}
	if session.State() != WizardTerminal || session.Outcome() != TerminalSuccess {
		t.Fatalf("expected terminal success, got %s/%s", session.State(), session.Outcome())
	}
	if !session.Cleared() {
		t.Fatalf("expected session draft cleared after success")
	}
	record := h.local.lastCall()
	if record.InsurerAckID != "ACK-1" || record.IdempotencyToken != token {
		t.Fatalf("expected local record to reference ack id and token, got %+v", record)
	}
	entry, err := h.ledger.Get(context.Background(), session.DraftID())
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	if entry.Phase != SubmissionPhasePersisted || entry.ClaimID != "CLM-1" {
		t.Fatalf("expected persisted ledger entry, got %+v", entry)
	}
}

func TestSubmit_LocalNeverCalledWithoutInsurerSuccess(t *testing.T) {
	cases := []struct {
		name  string
		reply insurerReply
		kind  SubmissionErrorKind
	}{
		{name: "transport failure", reply: insurerReply{err: errTransport}, kind: SubmissionInsurerUnavailable},
		{name: "explicit rejection", reply: insurerReply{resp: InsurerResponse{Success: false, Message: "policy lapsed"}}, kind: SubmissionInsurerRejection},
		{name: "success without ack id", reply: insurerReply{resp: InsurerResponse{Success: true}}, kind: SubmissionInsurerUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHarness(t)
			h.insurer.replies = []insurerReply{tc.reply}
			sessionID := h.toReview(t)

			_, err := h.svc.Submit(context.Background(), sessionID)
			subErr := requireSubmissionKind(t, err, tc.kind)
			if subErr.Phase != 1 {
				t.Fatalf("expected phase 1 error, got phase %d", subErr.Phase)
			}
			if h.local.callCount() != 0 {
				t.Fatalf("local persistence must not be called, got %d calls", h.local.callCount())
			}
			if state := h.session(t, sessionID).State(); state != WizardReview {
				t.Fatalf("expected wizard to stay at review, got %s", state)
			}
		})
	}
}

func TestSubmit_InsurerRejectionReturnsRejectedResult(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.replies = []insurerReply{{resp: InsurerResponse{Success: false, Message: "duplicate admission"}}}
	sessionID := h.toReview(t)

	result, err := h.svc.Submit(context.Background(), sessionID)
	subErr := requireSubmissionKind(t, err, SubmissionInsurerRejection)
	if subErr.Retryable() {
		t.Fatalf("insurer rejection must not be retryable as-is")
	}
	rejected, ok := result.Rejected()
	if !ok || rejected.Reason != "duplicate admission" {
		t.Fatalf("expected rejected result with reason, got %+v", result)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ClaimErrorInsurerRejected {
		t.Fatalf("expected %s envelope, got %v", ClaimErrorInsurerRejected, err)
	}
	if banner := ReviewBanner(err); banner == "" {
		t.Fatalf("expected review banner for insurer rejection")
	}

	if _, err := h.svc.Retreat(context.Background(), sessionID); err != nil {
		t.Fatalf("expected retreat to be allowed after rejection: %v", err)
	}
}

func TestSubmit_RetryAfterInsurerUnavailableReusesToken(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.replies = []insurerReply{
		{err: errTransport},
		{err: context.DeadlineExceeded},
		{resp: InsurerResponse{Success: true, ClaimAckID: "ACK-77"}},
	}
	sessionID := h.toReview(t)
	token := h.session(t, sessionID).Draft().IdempotencyToken

	for attempt := 0; attempt < 2; attempt++ {
		_, err := h.svc.Submit(context.Background(), sessionID)
		subErr := requireSubmissionKind(t, err, SubmissionInsurerUnavailable)
		if !subErr.Retryable() {
			t.Fatalf("insurer unavailable must be retryable")
		}
	}
	result, err := h.svc.Submit(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("third submit: %v", err)
	}
	if accepted, _ := result.Accepted(); accepted.InsurerAckID != "ACK-77" {
		t.Fatalf("expected ack ACK-77, got %+v", accepted)
	}

	tokens := h.insurer.tokens()
	if len(tokens) != 3 {
		t.Fatalf("expected 3 insurer calls, got %d", len(tokens))
	}
	for _, got := range tokens {
		if got != token {
			t.Fatalf("expected every insurer call to reuse token %s, got %s", token, got)
		}
	}
	if h.local.callCount() != 1 {
		t.Fatalf("expected a single local persistence call, got %d", h.local.callCount())
	}
}

func TestSubmit_RetryAfterPersistenceFailureRunsPhaseTwoOnly(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.replies = []insurerReply{{resp: InsurerResponse{Success: true, ClaimAckID: "ACK-42"}}}
	h.local.replies = []localReply{
		{err: errTransport},
		{resp: LocalRecordResponse{Success: true, ClaimID: "CLM-42"}},
	}
	sessionID := h.toReview(t)
	session := h.session(t, sessionID)

	_, err := h.svc.Submit(context.Background(), sessionID)
	subErr := requireSubmissionKind(t, err, SubmissionPersistenceFailureAfterAck)
	if subErr.Phase != 2 || subErr.InsurerAckID != "ACK-42" {
		t.Fatalf("expected phase 2 error carrying ACK-42, got %+v", subErr)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != ClaimErrorPersistenceAfterAccept || rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected critical persistence envelope, got %v", err)
	}
	if _, err := h.svc.Retreat(context.Background(), sessionID); err == nil || !errors.Is(err, ErrDraftLocked) {
		t.Fatalf("expected draft locked after insurer accept, got %v", err)
	}

	result, err := h.svc.RetryPersistence(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("retry persistence: %v", err)
	}
	accepted, ok := result.Accepted()
	if !ok || accepted.ClaimID != "CLM-42" || accepted.InsurerAckID != "ACK-42" {
		t.Fatalf("unexpected retry result %+v", accepted)
	}
	if h.insurer.callCount() != 1 {
		t.Fatalf("insurer must be called exactly once, got %d", h.insurer.callCount())
	}
	if h.local.callCount() != 2 {
		t.Fatalf("expected two local persistence calls, got %d", h.local.callCount())
	}
	if got := h.local.lastCall().InsurerAckID; got != "ACK-42" {
		t.Fatalf("expected retry to supply ACK-42, got %q", got)
	}
	if session.Outcome() != TerminalSuccess {
		t.Fatalf("expected terminal success after retry, got %s", session.Outcome())
	}
}

func TestSubmit_SubmitAfterPersistenceFailureAlsoSkipsPhaseOne(t *testing.T) {
	h := newTestHarness(t)
	h.local.replies = []localReply{
		{resp: LocalRecordResponse{Success: false, Message: "db down"}},
		{resp: LocalRecordResponse{Success: true, ClaimID: "CLM-9"}},
	}
	sessionID := h.toReview(t)

	if _, err := h.svc.Submit(context.Background(), sessionID); err == nil {
		t.Fatalf("expected persistence failure")
	}
	if _, err := h.svc.Submit(context.Background(), sessionID); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if h.insurer.callCount() != 1 {
		t.Fatalf("expected insurer to be called once, got %d", h.insurer.callCount())
	}
}

func TestSubmit_ConcurrentSubmitMakesNoNetworkCall(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.block = make(chan struct{})
	h.insurer.started = make(chan string, 1)
	sessionID := h.toReview(t)

	type submitResult struct {
		result SubmissionResult
		err    error
	}
	first := make(chan submitResult, 1)
	go func() {
		result, err := h.svc.Submit(context.Background(), sessionID)
		first <- submitResult{result: result, err: err}
	}()
	<-h.insurer.started

	_, err := h.svc.Submit(context.Background(), sessionID)
	requireSubmissionKind(t, err, SubmissionConcurrentRejected)
	if h.insurer.callCount() != 1 {
		t.Fatalf("concurrent submit must not reach the insurer, got %d calls", h.insurer.callCount())
	}
	if h.local.callCount() != 0 {
		t.Fatalf("concurrent submit must not reach local persistence, got %d calls", h.local.callCount())
	}
	if _, err := h.svc.Retreat(context.Background(), sessionID); !errors.Is(err, ErrDraftLocked) {
		t.Fatalf("expected retreat blocked while in flight, got %v", err)
	}

	close(h.insurer.block)
	done := <-first
	if done.err != nil {
		t.Fatalf("first submit: %v", done.err)
	}
	if done.result.Outcome() != SubmissionAccepted {
		t.Fatalf("expected first submit accepted, got %q", done.result.Outcome())
	}
}

func TestSubmit_CallerCancellationLeavesOutcomeUnresolved(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.block = make(chan struct{})
	h.insurer.started = make(chan string, 1)
	sessionID := h.toReview(t)
	session := h.session(t, sessionID)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(ctx, sessionID)
		errs <- err
	}()
	<-h.insurer.started
	cancel()

	err := <-errs
	requireSubmissionKind(t, err, SubmissionUnresolved)
	if !h.svc.Coordinator().InFlight(session.DraftID()) {
		t.Fatalf("expected guard to stay held while the detached sequence runs")
	}
	if _, _, done := h.svc.Coordinator().PendingOutcome(session.DraftID()); done {
		t.Fatalf("expected pending outcome while insurer call is outstanding")
	}

	close(h.insurer.block)
	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	result, err := h.svc.AwaitOutcome(awaitCtx, sessionID)
	if err != nil {
		t.Fatalf("await outcome: %v", err)
	}
	if result.Outcome() != SubmissionAccepted {
		t.Fatalf("expected accepted outcome, got %q", result.Outcome())
	}
	if session.Outcome() != TerminalSuccess {
		t.Fatalf("expected terminal success, got %s", session.Outcome())
	}
}

func TestSubmit_RequiresReviewStep(t *testing.T) {
	h := newTestHarness(t)
	sessionID := h.toDetailEntry(t, ClaimTypeIntimation)

	_, err := h.svc.Submit(context.Background(), sessionID)
	if err == nil {
		t.Fatalf("expected submit outside review to fail")
	}
	if h.insurer.callCount() != 0 {
		t.Fatalf("expected no insurer call, got %d", h.insurer.callCount())
	}
}

func TestSubmissionResult_Constructors(t *testing.T) {
	if _, err := NewAcceptedResult("", "ACK"); err == nil {
		t.Fatalf("expected accepted result without claim id to fail")
	}
	var zero SubmissionResult
	if !zero.IsZero() || zero.Outcome() != "" {
		t.Fatalf("expected zero result to have no outcome")
	}
	rejected := NewRejectedResult("")
	if got, ok := rejected.Rejected(); !ok || got.Reason == "" {
		t.Fatalf("expected rejected result to default its reason")
	}
	if _, ok := rejected.Accepted(); ok {
		t.Fatalf("rejected result must not be accepted")
	}
}

func TestSubmit_RetryStopsWhenLedgerAlreadyPersisted(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.local.replies = []localReply{{err: errTransport}}
	sessionID := h.toReview(t)
	session := h.session(t, sessionID)

	_, err := h.svc.Submit(ctx, sessionID)
	requireSubmissionKind(t, err, SubmissionPersistenceFailureAfterAck)

	entry, err := h.ledger.Get(ctx, session.DraftID())
	if err != nil {
		t.Fatalf("ledger get: %v", err)
	}
	entry.Phase = SubmissionPhasePersisted
	entry.ClaimID = "CLM-ELSEWHERE"
	entry.NextAttemptAt = nil
	if err := h.ledger.Save(ctx, entry); err != nil {
		t.Fatalf("ledger save: %v", err)
	}

	result, err := h.svc.RetryPersistence(ctx, sessionID)
	if err != nil {
		t.Fatalf("retry persistence: %v", err)
	}
	accepted, ok := result.Accepted()
	if !ok || accepted.ClaimID != "CLM-ELSEWHERE" || accepted.InsurerAckID != "ACK-1" {
		t.Fatalf("expected accepted result from the ledger, got %+v", result)
	}
	if h.local.callCount() != 1 {
		t.Fatalf("local record must not be called again, got %d calls", h.local.callCount())
	}
	if session.State() != WizardTerminal || session.Outcome() != TerminalSuccess {
		t.Fatalf("expected terminal success, got %s/%s", session.State(), session.Outcome())
	}
}

func TestSubmit_CloseSessionDropsRetainedOutcome(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	coordinator := h.svc.Coordinator()

	for i := 0; i < 3; i++ {
		sessionID := h.toReview(t)
		if _, err := h.svc.Submit(ctx, sessionID); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		if err := h.svc.CloseSession(ctx, sessionID); err != nil {
			t.Fatalf("close session %d: %v", i, err)
		}
	}
	if got := coordinator.retainedOutcomes(); got != 0 {
		t.Fatalf("expected no retained outcomes after closing every session, got %d", got)
	}
}

func TestSubmissionCoordinator_RetainedOutcomesAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Submission.RetainedOutcomes = 2
	coordinator, err := NewSubmissionCoordinator(&stubInsurer{}, &stubLocalRecord{}, nil, nil, cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}

	for _, draftID := range []string{"d1", "d2", "d3"} {
		coordinator.mu.Lock()
		coordinator.retainOutcomeLocked(draftID, submissionOutcome{})
		coordinator.mu.Unlock()
	}
	if got := coordinator.retainedOutcomes(); got != 2 {
		t.Fatalf("expected 2 retained outcomes, got %d", got)
	}
	if _, _, done := coordinator.PendingOutcome("d1"); done {
		t.Fatalf("expected oldest outcome to be evicted")
	}
	if _, _, done := coordinator.PendingOutcome("d3"); !done {
		t.Fatalf("expected newest outcome to be retained")
	}

	coordinator.Forget("d2")
	if got := coordinator.retainedOutcomes(); got != 1 {
		t.Fatalf("expected forget to drop d2, got %d retained", got)
	}
}

func TestSubmit_ReviewBannerShowsConcurrentAndUnresolved(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.block = make(chan struct{})
	h.insurer.started = make(chan string, 1)
	sessionID := h.toReview(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(ctx, sessionID)
		errs <- err
	}()
	<-h.insurer.started

	_, err := h.svc.Submit(context.Background(), sessionID)
	requireSubmissionKind(t, err, SubmissionConcurrentRejected)
	summary, err := h.svc.Summary(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if want := ReviewBanner(&SubmissionError{Kind: SubmissionConcurrentRejected}); summary.Banner != want {
		t.Fatalf("expected concurrent banner %q, got %q", want, summary.Banner)
	}

	cancel()
	requireSubmissionKind(t, <-errs, SubmissionUnresolved)
	summary, err = h.svc.Summary(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if want := ReviewBanner(&SubmissionError{Kind: SubmissionUnresolved}); summary.Banner != want {
		t.Fatalf("expected unresolved banner %q, got %q", want, summary.Banner)
	}

	close(h.insurer.block)
	awaitCtx, awaitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer awaitCancel()
	if _, err := h.svc.AwaitOutcome(awaitCtx, sessionID); err != nil {
		t.Fatalf("await outcome: %v", err)
	}
	summary, err = h.svc.Summary(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Banner != "" {
		t.Fatalf("expected no banner after success, got %q", summary.Banner)
	}
}
