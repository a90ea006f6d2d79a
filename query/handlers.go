package query

import (
	"context"
	"time"

	"github.com/goliatone/go-claimintake/core"
)

type SessionReader interface {
	Summary(ctx context.Context, sessionID string) (core.ReviewSummary, error)
	AwaitOutcome(ctx context.Context, sessionID string) (core.SubmissionResult, error)
}

type LedgerReader interface {
	LedgerEntry(ctx context.Context, draftID string) (core.LedgerEntry, error)
}

type SessionSummaryQuery struct {
	reader SessionReader
}

func NewSessionSummaryQuery(reader SessionReader) *SessionSummaryQuery {
	return &SessionSummaryQuery{reader: reader}
}

func (q *SessionSummaryQuery) Query(ctx context.Context, msg SessionSummaryMessage) (core.ReviewSummary, error) {
	if q == nil || q.reader == nil {
		return core.ReviewSummary{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.Summary(ctx, msg.SessionID)
}

type SubmissionOutcomeQuery struct {
	reader SessionReader
}

func NewSubmissionOutcomeQuery(reader SessionReader) *SubmissionOutcomeQuery {
	return &SubmissionOutcomeQuery{reader: reader}
}

func (q *SubmissionOutcomeQuery) Query(ctx context.Context, msg SubmissionOutcomeMessage) (core.SubmissionResult, error) {
	if q == nil || q.reader == nil {
		return core.SubmissionResult{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.AwaitOutcome(ctx, msg.SessionID)
}

type LedgerEntryQuery struct {
	reader LedgerReader
}

func NewLedgerEntryQuery(reader LedgerReader) *LedgerEntryQuery {
	return &LedgerEntryQuery{reader: reader}
}

func (q *LedgerEntryQuery) Query(ctx context.Context, msg LedgerEntryMessage) (core.LedgerEntry, error) {
	if q == nil || q.reader == nil {
		return core.LedgerEntry{}, queryDependencyError("query: ledger reader is required")
	}
	return q.reader.LedgerEntry(ctx, msg.DraftID)
}

type PendingPersistenceQuery struct {
	ledger core.SubmissionLedger
	now    func() time.Time
}

func NewPendingPersistenceQuery(ledger core.SubmissionLedger) *PendingPersistenceQuery {
	return &PendingPersistenceQuery{ledger: ledger, now: time.Now}
}

func (q *PendingPersistenceQuery) Query(ctx context.Context, msg PendingPersistenceMessage) ([]core.LedgerEntry, error) {
	if q == nil || q.ledger == nil {
		return nil, queryDependencyError("query: submission ledger is required")
	}
	dueBefore := msg.DueBefore
	if dueBefore.IsZero() {
		dueBefore = q.now().UTC()
	}
	return q.ledger.ListAwaitingPersistence(ctx, dueBefore, msg.Limit)
}
