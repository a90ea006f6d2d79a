package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultSubmissionLedgerMaxEntries = 8192

// MemorySubmissionLedger keeps ledger entries in process. Entries still
// awaiting local persistence are never evicted.
type MemorySubmissionLedger struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]LedgerEntry
	Now        func() time.Time
}

func NewMemorySubmissionLedger() *MemorySubmissionLedger {
	return NewMemorySubmissionLedgerWithLimit(defaultSubmissionLedgerMaxEntries)
}

func NewMemorySubmissionLedgerWithLimit(maxEntries int) *MemorySubmissionLedger {
	if maxEntries <= 0 {
		maxEntries = defaultSubmissionLedgerMaxEntries
	}
	return &MemorySubmissionLedger{
		maxEntries: maxEntries,
		entries:    map[string]LedgerEntry{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemorySubmissionLedger) Save(_ context.Context, entry LedgerEntry) error {
	if l == nil {
		return fmt.Errorf("core: submission ledger is not configured")
	}
	entry.DraftID = strings.TrimSpace(entry.DraftID)
	if entry.DraftID == "" {
		return fmt.Errorf("core: ledger draft id is required")
	}
	if strings.TrimSpace(entry.IdempotencyToken) == "" {
		return fmt.Errorf("core: ledger idempotency token is required")
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[entry.DraftID]; ok {
		if existing.IdempotencyToken != entry.IdempotencyToken {
			return fmt.Errorf("core: idempotency token mismatch for draft %s", entry.DraftID)
		}
		entry.CreatedAt = existing.CreatedAt
	} else {
		l.enforceCapacityLocked(1)
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now
	entry.NextAttemptAt = cloneTime(entry.NextAttemptAt)
	l.entries[entry.DraftID] = entry
	return nil
}

func (l *MemorySubmissionLedger) Get(_ context.Context, draftID string) (LedgerEntry, error) {
	if l == nil {
		return LedgerEntry{}, fmt.Errorf("core: submission ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[strings.TrimSpace(draftID)]
	if !ok {
		return LedgerEntry{}, ErrLedgerEntryMissing
	}
	entry.NextAttemptAt = cloneTime(entry.NextAttemptAt)
	return entry, nil
}

func (l *MemorySubmissionLedger) ListAwaitingPersistence(_ context.Context, dueBefore time.Time, limit int) ([]LedgerEntry, error) {
	if l == nil {
		return nil, fmt.Errorf("core: submission ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]LedgerEntry, 0)
	for _, entry := range l.entries {
		if !entry.Phase.AwaitingPersistence() || entry.NextAttemptAt == nil {
			continue
		}
		if entry.NextAttemptAt.After(dueBefore) {
			continue
		}
		entry.NextAttemptAt = cloneTime(entry.NextAttemptAt)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NextAttemptAt.Before(*out[j].NextAttemptAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *MemorySubmissionLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemorySubmissionLedger) enforceCapacityLocked(incoming int) {
	target := l.maxEntries - incoming
	if target < 0 {
		target = 0
	}
	for len(l.entries) > target {
		if !l.evictOldestSettledLocked() {
			return
		}
	}
}

func (l *MemorySubmissionLedger) evictOldestSettledLocked() bool {
	var oldestKey string
	var oldest time.Time
	for key, entry := range l.entries {
		if entry.Phase.AwaitingPersistence() {
			continue
		}
		if oldestKey == "" || entry.UpdatedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.UpdatedAt
		}
	}
	if oldestKey == "" {
		return false
	}
	delete(l.entries, oldestKey)
	return true
}
