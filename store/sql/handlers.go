package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func claimRecordHandlers() repository.ModelHandlers[*claimRecord] {
	return repository.ModelHandlers[*claimRecord]{
		NewRecord: func() *claimRecord {
			return &claimRecord{}
		},
		GetID: func(record *claimRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *claimRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "claim_id"
		},
		GetIdentifierValue: func(record *claimRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ClaimID)
		},
	}
}

func ledgerHandlers() repository.ModelHandlers[*ledgerRecord] {
	return repository.ModelHandlers[*ledgerRecord]{
		NewRecord: func() *ledgerRecord {
			return &ledgerRecord{}
		},
		GetID: func(record *ledgerRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *ledgerRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "draft_id"
		},
		GetIdentifierValue: func(record *ledgerRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.DraftID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
