package query

import (
	"github.com/goliatone/go-claimintake/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[SessionSummaryMessage, core.ReviewSummary]       = (*SessionSummaryQuery)(nil)
	_ gocmd.Querier[SubmissionOutcomeMessage, core.SubmissionResult] = (*SubmissionOutcomeQuery)(nil)
	_ gocmd.Querier[LedgerEntryMessage, core.LedgerEntry]            = (*LedgerEntryQuery)(nil)
	_ gocmd.Querier[PendingPersistenceMessage, []core.LedgerEntry]   = (*PendingPersistenceQuery)(nil)
)
