package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-claimintake/core"
	"github.com/uptrace/bun"
)

type claimRecord struct {
	bun.BaseModel `bun:"table:claim_records,alias:cr"`

	ID               string            `bun:"id,pk"`
	ClaimID          string            `bun:"claim_id,notnull"`
	IdempotencyToken string            `bun:"idempotency_token,notnull"`
	DraftID          string            `bun:"draft_id,notnull"`
	PolicyID         string            `bun:"policy_id,notnull"`
	PolicyNumber     string            `bun:"policy_number,notnull"`
	PatientRef       string            `bun:"patient_ref,notnull"`
	ClaimType        string            `bun:"claim_type,notnull"`
	InsurerAckID     string            `bun:"insurer_ack_id,notnull"`
	ClaimAmount      float64           `bun:"claim_amount,notnull"`
	Payload          core.ClaimPayload `bun:"payload,type:jsonb,notnull"`
	CreatedAt        time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type ledgerRecord struct {
	bun.BaseModel `bun:"table:submission_ledger,alias:sl"`

	ID               string            `bun:"id,pk"`
	DraftID          string            `bun:"draft_id,notnull"`
	IdempotencyToken string            `bun:"idempotency_token,notnull"`
	Phase            string            `bun:"phase,notnull"`
	InsurerAckID     string            `bun:"insurer_ack_id,notnull"`
	ClaimID          string            `bun:"claim_id,notnull"`
	Payload          core.ClaimPayload `bun:"payload,type:jsonb,notnull"`
	Attempts         int               `bun:"attempts,notnull"`
	LastError        string            `bun:"last_error,notnull"`
	NextAttemptAt    *time.Time        `bun:"next_attempt_at,nullzero"`
	CreatedAt        time.Time         `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time         `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newClaimRecord(id string, claimID string, in core.LocalClaimRecord, now time.Time) *claimRecord {
	return &claimRecord{
		ID:               id,
		ClaimID:          claimID,
		IdempotencyToken: strings.TrimSpace(in.IdempotencyToken),
		DraftID:          strings.TrimSpace(in.DraftID),
		PolicyID:         strings.TrimSpace(in.PolicyID),
		PolicyNumber:     strings.TrimSpace(in.PolicyNumber),
		PatientRef:       strings.TrimSpace(in.PatientRef),
		ClaimType:        string(in.ClaimType),
		InsurerAckID:     strings.TrimSpace(in.InsurerAckID),
		ClaimAmount:      in.Hospitalization.ClaimAmount,
		Payload:          in.ClaimPayload,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (r *claimRecord) toDomain() StoredClaim {
	if r == nil {
		return StoredClaim{}
	}
	return StoredClaim{
		ClaimID:      r.ClaimID,
		InsurerAckID: r.InsurerAckID,
		Payload:      r.Payload,
		CreatedAt:    r.CreatedAt,
	}
}

func newLedgerRecord(entry core.LedgerEntry) *ledgerRecord {
	return &ledgerRecord{
		DraftID:          strings.TrimSpace(entry.DraftID),
		IdempotencyToken: strings.TrimSpace(entry.IdempotencyToken),
		Phase:            string(entry.Phase),
		InsurerAckID:     strings.TrimSpace(entry.InsurerAckID),
		ClaimID:          strings.TrimSpace(entry.ClaimID),
		Payload:          entry.Payload,
		Attempts:         entry.Attempts,
		LastError:        entry.LastError,
		NextAttemptAt:    utcTimePointer(entry.NextAttemptAt),
		CreatedAt:        entry.CreatedAt,
		UpdatedAt:        entry.UpdatedAt,
	}
}

func (r *ledgerRecord) toDomain() core.LedgerEntry {
	if r == nil {
		return core.LedgerEntry{}
	}
	return core.LedgerEntry{
		DraftID:          r.DraftID,
		IdempotencyToken: r.IdempotencyToken,
		Phase:            core.SubmissionPhase(r.Phase),
		InsurerAckID:     r.InsurerAckID,
		ClaimID:          r.ClaimID,
		Payload:          r.Payload,
		Attempts:         r.Attempts,
		LastError:        r.LastError,
		NextAttemptAt:    utcTimePointer(r.NextAttemptAt),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func utcTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
