package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var (
	ErrPincodeNotFound    = errors.New("core: pincode not found")
	ErrLedgerEntryMissing = errors.New("core: submission ledger entry not found")
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// InsurerAPI is the authoritative system (insurer or TPA). A non-nil error
// means the outcome is unknown to the caller (transport or timeout).
type InsurerAPI interface {
	SubmitClaim(ctx context.Context, payload ClaimPayload) (InsurerResponse, error)
}

type InsurerResponse struct {
	Success    bool   `json:"success"`
	ClaimAckID string `json:"claim_ack_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// LocalRecordAPI is the local system of record. Implementations must treat
// the idempotency token as a natural key so re-persisting is safe.
type LocalRecordAPI interface {
	PersistClaim(ctx context.Context, record LocalClaimRecord) (LocalRecordResponse, error)
}

type LocalRecordResponse struct {
	Success bool   `json:"success"`
	ClaimID string `json:"claim_id,omitempty"`
	Message string `json:"message,omitempty"`
}

type PostalLookup interface {
	LookupPincode(ctx context.Context, pincode string) (PostalAddress, error)
}

type PostalAddress struct {
	Status string `json:"status"`
	City   string `json:"city"`
	State  string `json:"state"`
}

type PolicyDependents interface {
	ListDependents(ctx context.Context, policyID string) ([]PatientRef, error)
}

// SubmissionLedger keeps the idempotency token and phase progress of a
// draft outside the session so an interrupted submission can be resumed.
type SubmissionLedger interface {
	Save(ctx context.Context, entry LedgerEntry) error
	Get(ctx context.Context, draftID string) (LedgerEntry, error)
	ListAwaitingPersistence(ctx context.Context, dueBefore time.Time, limit int) ([]LedgerEntry, error)
}

type LedgerEntry struct {
	DraftID          string
	IdempotencyToken string
	Phase            SubmissionPhase
	InsurerAckID     string
	ClaimID          string
	Payload          ClaimPayload
	Attempts         int
	LastError        string
	NextAttemptAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
