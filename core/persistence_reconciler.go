package core

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

const ReconcileJobID = "claims.persistence.reconcile"

type ReconcileStats struct {
	Claimed   int
	Persisted int
	Retried   int
	Exhausted int
	Skipped   int
}

// PersistenceListener is told about drafts the reconciler persisted.
type PersistenceListener func(ctx context.Context, entry LedgerEntry)

// PersistenceReconciler completes phase 2 for drafts the insurer accepted but
// the local system of record never stored. It never calls the insurer.
type PersistenceReconciler struct {
	ledger   SubmissionLedger
	local    LocalRecordAPI
	guard    *InFlightGuard
	config   ReconcileConfig
	timeout  time.Duration
	listener PersistenceListener
	now      func() time.Time
}

func NewPersistenceReconciler(
	ledger SubmissionLedger,
	local LocalRecordAPI,
	guard *InFlightGuard,
	config Config,
) (*PersistenceReconciler, error) {
	if ledger == nil {
		return nil, fmt.Errorf("core: submission ledger is required")
	}
	if local == nil {
		return nil, fmt.Errorf("core: local record api is required")
	}
	if guard == nil {
		guard = NewInFlightGuard()
	}
	defaults := DefaultConfig()
	reconcile := config.Reconcile
	if reconcile.BatchSize <= 0 {
		reconcile.BatchSize = defaults.Reconcile.BatchSize
	}
	if reconcile.MaxAttempts <= 0 {
		reconcile.MaxAttempts = defaults.Reconcile.MaxAttempts
	}
	if reconcile.InitialBackoff <= 0 {
		reconcile.InitialBackoff = defaults.Reconcile.InitialBackoff
	}
	if reconcile.MaxBackoff <= 0 {
		reconcile.MaxBackoff = defaults.Reconcile.MaxBackoff
	}
	timeout := config.Submission.PersistenceTimeout
	if timeout <= 0 {
		timeout = defaults.Submission.PersistenceTimeout
	}
	return &PersistenceReconciler{
		ledger:  ledger,
		local:   local,
		guard:   guard,
		config:  reconcile,
		timeout: timeout,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (r *PersistenceReconciler) OnPersisted(listener PersistenceListener) {
	if r == nil {
		return
	}
	r.listener = listener
}

// ReconcilePending re-persists due ledger entries, at most batchSize of them
// (the configured batch size when batchSize <= 0).
func (r *PersistenceReconciler) ReconcilePending(ctx context.Context, batchSize int) (ReconcileStats, error) {
	if r == nil || r.ledger == nil || r.local == nil {
		return ReconcileStats{}, fmt.Errorf("core: persistence reconciler is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	entries, err := r.ledger.ListAwaitingPersistence(ctx, r.now(), limit)
	if err != nil {
		return ReconcileStats{}, err
	}

	stats := ReconcileStats{Claimed: len(entries)}
	var reconcileErr error
	for _, entry := range entries {
		draftID := strings.TrimSpace(entry.DraftID)
		if !r.guard.TryAcquire(draftID) {
			stats.Skipped++
			continue
		}
		persisted, exhausted, err := r.reconcileOne(ctx, entry)
		r.guard.Release(draftID)
		switch {
		case persisted:
			stats.Persisted++
		case exhausted:
			stats.Exhausted++
		default:
			stats.Retried++
		}
		reconcileErr = joinErrors(reconcileErr, err)
	}
	return stats, reconcileErr
}

// ReconcileDraft re-persists a single draft regardless of its schedule.
func (r *PersistenceReconciler) ReconcileDraft(ctx context.Context, draftID string) (LedgerEntry, error) {
	if r == nil || r.ledger == nil {
		return LedgerEntry{}, fmt.Errorf("core: persistence reconciler is not configured")
	}
	draftID = strings.TrimSpace(draftID)
	entry, err := r.ledger.Get(ctx, draftID)
	if err != nil {
		return LedgerEntry{}, err
	}
	if !entry.Phase.AwaitingPersistence() {
		return entry, nil
	}
	if !r.guard.TryAcquire(draftID) {
		return entry, &SubmissionError{Kind: SubmissionConcurrentRejected, DraftID: draftID}
	}
	defer r.guard.Release(draftID)
	if _, _, err := r.reconcileOne(ctx, entry); err != nil {
		return entry, err
	}
	return r.ledger.Get(ctx, draftID)
}

func (r *PersistenceReconciler) reconcileOne(ctx context.Context, entry LedgerEntry) (persisted bool, exhausted bool, err error) {
	// The entry may have moved on since it was listed.
	current, getErr := r.ledger.Get(ctx, entry.DraftID)
	if getErr == nil {
		entry = current
	}
	if !entry.Phase.AwaitingPersistence() || strings.TrimSpace(entry.InsurerAckID) == "" {
		return entry.Phase == SubmissionPhasePersisted, false, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	resp, callErr := r.local.PersistClaim(callCtx, LocalClaimRecord{
		ClaimPayload: entry.Payload,
		InsurerAckID: entry.InsurerAckID,
	})
	cancel()
	claimID := strings.TrimSpace(resp.ClaimID)
	if callErr == nil && (!resp.Success || claimID == "") {
		callErr = fmt.Errorf("core: local record rejected: %s", firstNonEmpty(resp.Message, "no claim id returned"))
	}

	if callErr == nil {
		entry.Phase = SubmissionPhasePersisted
		entry.ClaimID = claimID
		entry.LastError = ""
		entry.NextAttemptAt = nil
		if err := r.ledger.Save(ctx, entry); err != nil {
			return false, false, err
		}
		if r.listener != nil {
			r.listener(ctx, entry)
		}
		return true, false, nil
	}

	entry.Attempts++
	entry.LastError = callErr.Error()
	if entry.Attempts >= r.config.MaxAttempts {
		entry.NextAttemptAt = nil
		exhausted = true
	} else {
		next := r.now().Add(backoffDelay(r.config, entry.Attempts))
		entry.NextAttemptAt = &next
	}
	if err := r.ledger.Save(ctx, entry); err != nil {
		return false, exhausted, joinErrors(callErr, err)
	}
	return false, exhausted, fmt.Errorf("core: reconcile draft %s: %w", entry.DraftID, callErr)
}

func backoffDelay(config ReconcileConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 {
		return config.MaxBackoff
	}
	if next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
