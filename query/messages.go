package query

import (
	"strings"
	"time"
)

const (
	TypeSessionSummary     = "claimintake.query.session.summary"
	TypeSubmissionOutcome  = "claimintake.query.submission.outcome"
	TypeLedgerEntry        = "claimintake.query.ledger.entry"
	TypePendingPersistence = "claimintake.query.ledger.pending_persistence"
)

type SessionSummaryMessage struct {
	SessionID string
}

func (SessionSummaryMessage) Type() string { return TypeSessionSummary }

func (m SessionSummaryMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return queryValidationError("session_id", "session id is required")
	}
	return nil
}

// SubmissionOutcomeMessage waits for an unresolved submission. Callers bound
// the wait through the query context.
type SubmissionOutcomeMessage struct {
	SessionID string
}

func (SubmissionOutcomeMessage) Type() string { return TypeSubmissionOutcome }

func (m SubmissionOutcomeMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return queryValidationError("session_id", "session id is required")
	}
	return nil
}

type LedgerEntryMessage struct {
	DraftID string
}

func (LedgerEntryMessage) Type() string { return TypeLedgerEntry }

func (m LedgerEntryMessage) Validate() error {
	if strings.TrimSpace(m.DraftID) == "" {
		return queryValidationError("draft_id", "draft id is required")
	}
	return nil
}

// PendingPersistenceMessage lists ledger entries accepted by the insurer but
// not yet stored locally. A zero DueBefore means now.
type PendingPersistenceMessage struct {
	DueBefore time.Time
	Limit     int
}

func (PendingPersistenceMessage) Type() string { return TypePendingPersistence }

func (m PendingPersistenceMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
