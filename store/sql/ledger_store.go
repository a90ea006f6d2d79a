package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-claimintake/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LedgerStore is the durable submission ledger. One row per draft; the
// idempotency token of a row never changes.
type LedgerStore struct {
	db   *bun.DB
	repo repository.Repository[*ledgerRecord]

	Now func() time.Time
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*ledgerRecord](db, ledgerHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid submission ledger repository wiring: %w", err)
		}
	}
	return &LedgerStore{
		db:   db,
		repo: repo,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *LedgerStore) Save(ctx context.Context, entry core.LedgerEntry) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: submission ledger store is not configured")
	}
	entry.DraftID = strings.TrimSpace(entry.DraftID)
	if entry.DraftID == "" {
		return fmt.Errorf("sqlstore: ledger draft id is required")
	}
	if strings.TrimSpace(entry.IdempotencyToken) == "" {
		return fmt.Errorf("sqlstore: ledger idempotency token is required")
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current := &ledgerRecord{}
		err := tx.NewSelect().
			Model(current).
			Where("?TableAlias.draft_id = ?", entry.DraftID).
			Limit(1).
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		record := newLedgerRecord(entry)
		record.UpdatedAt = now
		if errors.Is(err, sql.ErrNoRows) {
			record.ID = uuid.NewString()
			record.CreatedAt = now
			_, createErr := s.repo.CreateTx(ctx, tx, record)
			return createErr
		}

		if current.IdempotencyToken != record.IdempotencyToken {
			return fmt.Errorf("sqlstore: idempotency token mismatch for draft %s", entry.DraftID)
		}
		record.ID = current.ID
		record.CreatedAt = current.CreatedAt
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *LedgerStore) Get(ctx context.Context, draftID string) (core.LedgerEntry, error) {
	if s == nil || s.repo == nil {
		return core.LedgerEntry{}, fmt.Errorf("sqlstore: submission ledger store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("draft_id", "=", strings.TrimSpace(draftID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.LedgerEntry{}, err
	}
	if len(records) == 0 {
		return core.LedgerEntry{}, core.ErrLedgerEntryMissing
	}
	return records[0].toDomain(), nil
}

func (s *LedgerStore) ListAwaitingPersistence(ctx context.Context, dueBefore time.Time, limit int) ([]core.LedgerEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: submission ledger store is not configured")
	}
	due := dueBefore.UTC()
	selectors := []repository.SelectCriteria{
		repository.SelectBy("phase", "=", string(core.SubmissionPhaseInsurerAccepted)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.next_attempt_at IS NOT NULL").
				Where("?TableAlias.next_attempt_at <= ?", due)
		}),
		repository.OrderBy("next_attempt_at ASC"),
	}
	if limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(limit, 0))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.LedgerEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LedgerStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
