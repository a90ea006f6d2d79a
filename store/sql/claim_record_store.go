package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-claimintake/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StoredClaim is a claim committed to the local system of record.
type StoredClaim struct {
	ClaimID      string
	InsurerAckID string
	Payload      core.ClaimPayload
	CreatedAt    time.Time
}

// ClaimRecordStore is the bun-backed local system of record. The idempotency
// token is unique, so persisting the same accepted claim twice returns the
// claim id assigned the first time.
type ClaimRecordStore struct {
	db   *bun.DB
	repo repository.Repository[*claimRecord]

	NewClaimID func() string
	Now        func() time.Time
}

func NewClaimRecordStore(db *bun.DB) (*ClaimRecordStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*claimRecord](db, claimRecordHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid claim record repository wiring: %w", err)
		}
	}
	return &ClaimRecordStore{
		db:         db,
		repo:       repo,
		NewClaimID: defaultClaimID,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ClaimRecordStore) PersistClaim(ctx context.Context, in core.LocalClaimRecord) (core.LocalRecordResponse, error) {
	if s == nil || s.repo == nil {
		return core.LocalRecordResponse{}, fmt.Errorf("sqlstore: claim record store is not configured")
	}
	token := strings.TrimSpace(in.IdempotencyToken)
	if token == "" {
		return core.LocalRecordResponse{Message: "idempotency token is required"}, nil
	}
	if strings.TrimSpace(in.InsurerAckID) == "" {
		return core.LocalRecordResponse{Message: "insurer ack id is required"}, nil
	}

	existing, err := s.findByToken(ctx, token)
	if err != nil {
		return core.LocalRecordResponse{}, err
	}
	if existing != nil {
		return s.replayResponse(existing, in), nil
	}

	record := newClaimRecord(uuid.NewString(), s.claimID(), in, s.now())
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if !isUniqueViolation(err) {
			return core.LocalRecordResponse{}, err
		}
		existing, lookupErr := s.findByToken(ctx, token)
		if lookupErr != nil {
			return core.LocalRecordResponse{}, lookupErr
		}
		if existing == nil {
			return core.LocalRecordResponse{}, err
		}
		return s.replayResponse(existing, in), nil
	}
	return core.LocalRecordResponse{Success: true, ClaimID: created.ClaimID}, nil
}

func (s *ClaimRecordStore) Get(ctx context.Context, claimID string) (StoredClaim, error) {
	if s == nil || s.repo == nil {
		return StoredClaim{}, fmt.Errorf("sqlstore: claim record store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("claim_id", "=", strings.TrimSpace(claimID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return StoredClaim{}, err
	}
	if len(records) == 0 {
		return StoredClaim{}, fmt.Errorf("%w: claim id %q", ErrClaimNotFound, claimID)
	}
	return records[0].toDomain(), nil
}

func (s *ClaimRecordStore) findByToken(ctx context.Context, token string) (*claimRecord, error) {
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("idempotency_token", "=", token),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (s *ClaimRecordStore) replayResponse(existing *claimRecord, in core.LocalClaimRecord) core.LocalRecordResponse {
	if existing.InsurerAckID != strings.TrimSpace(in.InsurerAckID) {
		return core.LocalRecordResponse{
			Message: fmt.Sprintf("idempotency token already recorded with insurer ack %s", existing.InsurerAckID),
		}
	}
	return core.LocalRecordResponse{Success: true, ClaimID: existing.ClaimID}
}

func (s *ClaimRecordStore) claimID() string {
	if s.NewClaimID != nil {
		if id := strings.TrimSpace(s.NewClaimID()); id != "" {
			return id
		}
	}
	return defaultClaimID()
}

func (s *ClaimRecordStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func defaultClaimID() string {
	compact := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "CLM-" + strings.ToUpper(compact[:12])
}
