package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemorySubmissionLedger_RejectsTokenChange(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemorySubmissionLedger()
	if err := ledger.Save(ctx, LedgerEntry{DraftID: "d1", IdempotencyToken: "tok-1", Phase: SubmissionPhasePending}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ledger.Save(ctx, LedgerEntry{DraftID: "d1", IdempotencyToken: "tok-2", Phase: SubmissionPhasePending}); err == nil {
		t.Fatalf("expected token mismatch to be rejected")
	}
	entry, err := ledger.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if entry.IdempotencyToken != "tok-1" {
		t.Fatalf("expected original token, got %s", entry.IdempotencyToken)
	}
	if _, err := ledger.Get(ctx, "missing"); !errors.Is(err, ErrLedgerEntryMissing) {
		t.Fatalf("expected missing entry error, got %v", err)
	}
}

func TestMemorySubmissionLedger_KeepsAwaitingEntriesOnEviction(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemorySubmissionLedgerWithLimit(2)
	clock := testNow
	ledger.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	due := testNow
	if err := ledger.Save(ctx, LedgerEntry{DraftID: "accepted", IdempotencyToken: "t0", Phase: SubmissionPhaseInsurerAccepted, InsurerAckID: "ACK", NextAttemptAt: &due}); err != nil {
		t.Fatalf("save accepted: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if err := ledger.Save(ctx, LedgerEntry{DraftID: id, IdempotencyToken: "t-" + id, Phase: SubmissionPhasePersisted}); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if _, err := ledger.Get(ctx, "accepted"); err != nil {
		t.Fatalf("awaiting entry must not be evicted: %v", err)
	}
	if _, err := ledger.Get(ctx, "a"); !errors.Is(err, ErrLedgerEntryMissing) {
		t.Fatalf("expected oldest settled entry to be evicted, got %v", err)
	}
}

func TestMemorySubmissionLedger_ListAwaitingPersistence(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemorySubmissionLedger()
	early := testNow.Add(-time.Hour)
	late := testNow.Add(-time.Minute)
	future := testNow.Add(time.Hour)
	entries := []LedgerEntry{
		{DraftID: "late", IdempotencyToken: "t1", Phase: SubmissionPhaseInsurerAccepted, NextAttemptAt: &late},
		{DraftID: "early", IdempotencyToken: "t2", Phase: SubmissionPhaseInsurerAccepted, NextAttemptAt: &early},
		{DraftID: "future", IdempotencyToken: "t3", Phase: SubmissionPhaseInsurerAccepted, NextAttemptAt: &future},
		{DraftID: "exhausted", IdempotencyToken: "t4", Phase: SubmissionPhaseInsurerAccepted},
		{DraftID: "done", IdempotencyToken: "t5", Phase: SubmissionPhasePersisted, NextAttemptAt: &early},
	}
	for _, entry := range entries {
		if err := ledger.Save(ctx, entry); err != nil {
			t.Fatalf("save %s: %v", entry.DraftID, err)
		}
	}

	due, err := ledger.ListAwaitingPersistence(ctx, testNow, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 2 || due[0].DraftID != "early" || due[1].DraftID != "late" {
		t.Fatalf("expected early then late, got %+v", due)
	}
	limited, _ := ledger.ListAwaitingPersistence(ctx, testNow, 1)
	if len(limited) != 1 || limited[0].DraftID != "early" {
		t.Fatalf("expected limit to keep the earliest entry, got %+v", limited)
	}
}

func TestService_ResumeSessionReusesToken(t *testing.T) {
	h := newTestHarness(t)
	h.insurer.replies = []insurerReply{
		{err: errTransport},
		{resp: InsurerResponse{Success: true, ClaimAckID: "ACK-5"}},
	}
	ctx := context.Background()
	sessionID := h.toReview(t)
	original := h.session(t, sessionID)

	_, err := h.svc.Submit(ctx, sessionID)
	requireSubmissionKind(t, err, SubmissionInsurerUnavailable)
	if err := h.svc.CloseSession(ctx, sessionID); err != nil {
		t.Fatalf("close session: %v", err)
	}

	summary, err := h.svc.ResumeSession(ctx, original.DraftID())
	if err != nil {
		t.Fatalf("resume session: %v", err)
	}
	if summary.State != WizardReview || summary.DraftID != original.DraftID() {
		t.Fatalf("expected resumed draft at review, got %+v", summary)
	}
	if summary.Payload.PatientRef != "UH-100" || summary.Payload.Hospitalization.HospitalPincode != "400001" {
		t.Fatalf("expected payload restored from ledger, got %+v", summary.Payload)
	}

	if _, err := h.svc.Submit(ctx, summary.SessionID); err != nil {
		t.Fatalf("submit resumed session: %v", err)
	}
	tokens := h.insurer.tokens()
	if len(tokens) != 2 || tokens[0] != tokens[1] {
		t.Fatalf("expected the same idempotency token on both attempts, got %v", tokens)
	}
}
