package claimintake

import "github.com/goliatone/go-claimintake/core"

type Config = core.Config

type SubmissionConfig = core.SubmissionConfig
type ReconcileConfig = core.ReconcileConfig
type AddressConfig = core.AddressConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type InsurerAPI = core.InsurerAPI
type LocalRecordAPI = core.LocalRecordAPI
type PostalLookup = core.PostalLookup
type PolicyDependents = core.PolicyDependents
type SubmissionLedger = core.SubmissionLedger
type LedgerEntry = core.LedgerEntry

type ClaimType = core.ClaimType
type PolicySelection = core.PolicySelection
type HospitalizationDetails = core.HospitalizationDetails
type ClaimantContact = core.ClaimantContact
type DocumentHandle = core.DocumentHandle
type ReviewSummary = core.ReviewSummary
type Transition = core.Transition
type SubmissionResult = core.SubmissionResult
type ReconcileStats = core.ReconcileStats

const (
	ClaimTypeIntimation    = core.ClaimTypeIntimation
	ClaimTypeReimbursement = core.ClaimTypeReimbursement
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithInsurerAPI        = core.WithInsurerAPI
	WithLocalRecordAPI    = core.WithLocalRecordAPI
	WithPostalLookup      = core.WithPostalLookup
	WithPolicyDependents  = core.WithPolicyDependents
	WithSubmissionLedger  = core.WithSubmissionLedger
	WithInFlightGuard     = core.WithInFlightGuard
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
