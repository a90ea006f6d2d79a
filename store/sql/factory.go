package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-claimintake/core"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	claimRecordStore *ClaimRecordStore
	ledgerStore      *LedgerStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.claimRecordStore != nil && f.ledgerStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) SubmissionLedger() core.SubmissionLedger {
	if f == nil || f.ledgerStore == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) LocalRecordAPI() core.LocalRecordAPI {
	if f == nil || f.claimRecordStore == nil {
		return nil
	}
	return f.claimRecordStore
}

func (f *RepositoryFactory) ClaimRecordStore() *ClaimRecordStore {
	if f == nil {
		return nil
	}
	return f.claimRecordStore
}

func (f *RepositoryFactory) LedgerStore() *LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	claimRecordStore, err := NewClaimRecordStore(f.db)
	if err != nil {
		return err
	}
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.claimRecordStore = claimRecordStore
	f.ledgerStore = ledgerStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
