package sqlstore

import "github.com/goliatone/go-claimintake/core"

var (
	_ core.SubmissionLedger       = (*LedgerStore)(nil)
	_ core.LocalRecordAPI         = (*ClaimRecordStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
