package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StoreProvider exposes durable implementations of the ledger and the local
// system of record.
type StoreProvider interface {
	SubmissionLedger() SubmissionLedger
	LocalRecordAPI() LocalRecordAPI
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	insurer           InsurerAPI
	localRecord       LocalRecordAPI
	postalLookup      PostalLookup
	dependents        PolicyDependents
	ledger            SubmissionLedger
	guard             *InFlightGuard
	clock             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithInsurerAPI(api InsurerAPI) Option {
	return func(b *serviceBuilder) {
		b.insurer = api
	}
}

func WithLocalRecordAPI(api LocalRecordAPI) Option {
	return func(b *serviceBuilder) {
		b.localRecord = api
	}
}

func WithPostalLookup(lookup PostalLookup) Option {
	return func(b *serviceBuilder) {
		b.postalLookup = lookup
	}
}

func WithPolicyDependents(source PolicyDependents) Option {
	return func(b *serviceBuilder) {
		b.dependents = source
	}
}

func WithSubmissionLedger(ledger SubmissionLedger) Option {
	return func(b *serviceBuilder) {
		b.ledger = ledger
	}
}

func WithInFlightGuard(guard *InFlightGuard) Option {
	return func(b *serviceBuilder) {
		b.guard = guard
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("claimintake", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// StaticConfigLoader serves a fixed raw config map, mostly for tests and
// embedders that already parsed their configuration.
func StaticConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// configToLayerMap keeps only set values for non-default layers so an unset
// runtime field never masks a loaded one.
func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	submission := map[string]any{}
	if includeZero || cfg.Submission.InsurerTimeout > 0 {
		submission["insurer_timeout"] = cfg.Submission.InsurerTimeout
	}
	if includeZero || cfg.Submission.PersistenceTimeout > 0 {
		submission["persistence_timeout"] = cfg.Submission.PersistenceTimeout
	}
	if includeZero || cfg.Submission.RetainedOutcomes > 0 {
		submission["retained_outcomes"] = cfg.Submission.RetainedOutcomes
	}
	if len(submission) > 0 {
		layer["submission"] = submission
	}

	reconcile := map[string]any{}
	if includeZero || cfg.Reconcile.BatchSize > 0 {
		reconcile["batch_size"] = cfg.Reconcile.BatchSize
	}
	if includeZero || cfg.Reconcile.MaxAttempts > 0 {
		reconcile["max_attempts"] = cfg.Reconcile.MaxAttempts
	}
	if includeZero || cfg.Reconcile.InitialBackoff > 0 {
		reconcile["initial_backoff"] = cfg.Reconcile.InitialBackoff
	}
	if includeZero || cfg.Reconcile.MaxBackoff > 0 {
		reconcile["max_backoff"] = cfg.Reconcile.MaxBackoff
	}
	if len(reconcile) > 0 {
		layer["reconcile"] = reconcile
	}

	if includeZero || cfg.Address.PincodeLength > 0 {
		layer["address"] = map[string]any{
			"pincode_length": cfg.Address.PincodeLength,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Validation.TimeZone) != "" {
		layer["validation"] = map[string]any{
			"time_zone": cfg.Validation.TimeZone,
		}
	}
	return layer
}
