package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultInsurerTimeout        = 45 * time.Second
	defaultPersistenceTimeout    = 20 * time.Second
	defaultReconcileMaxAttempts  = 5
	defaultReconcileInitialDelay = 2 * time.Second
	defaultReconcileMaxDelay     = 5 * time.Minute
	defaultReconcileBatchSize    = 25
	defaultPincodeLength         = 6
	defaultRetainedOutcomes      = 1024
	defaultValidationTimeZone    = "UTC"
)

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Submission  SubmissionConfig `koanf:"submission" mapstructure:"submission"`
	Reconcile   ReconcileConfig  `koanf:"reconcile" mapstructure:"reconcile"`
	Address     AddressConfig    `koanf:"address" mapstructure:"address"`
	Validation  ValidationConfig `koanf:"validation" mapstructure:"validation"`
}

// SubmissionConfig bounds each remote phase. Neither phase is retried
// automatically by the coordinator.
type SubmissionConfig struct {
	InsurerTimeout     time.Duration `koanf:"insurer_timeout" mapstructure:"insurer_timeout"`
	PersistenceTimeout time.Duration `koanf:"persistence_timeout" mapstructure:"persistence_timeout"`
	// RetainedOutcomes caps the finished outcomes kept for AwaitOutcome.
	RetainedOutcomes int `koanf:"retained_outcomes" mapstructure:"retained_outcomes"`
}

type ReconcileConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type AddressConfig struct {
	PincodeLength int `koanf:"pincode_length" mapstructure:"pincode_length"`
}

// ValidationConfig sets the zone whose calendar day counts as today when
// checking admission and discharge dates.
type ValidationConfig struct {
	TimeZone string `koanf:"time_zone" mapstructure:"time_zone"`
}

func (c ValidationConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.TimeZone)
	if name == "" || strings.EqualFold(name, defaultValidationTimeZone) {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "claimintake",
		Submission: SubmissionConfig{
			InsurerTimeout:     defaultInsurerTimeout,
			PersistenceTimeout: defaultPersistenceTimeout,
			RetainedOutcomes:   defaultRetainedOutcomes,
		},
		Reconcile: ReconcileConfig{
			BatchSize:      defaultReconcileBatchSize,
			MaxAttempts:    defaultReconcileMaxAttempts,
			InitialBackoff: defaultReconcileInitialDelay,
			MaxBackoff:     defaultReconcileMaxDelay,
		},
		Address: AddressConfig{
			PincodeLength: defaultPincodeLength,
		},
		Validation: ValidationConfig{
			TimeZone: defaultValidationTimeZone,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Submission.InsurerTimeout <= 0 {
		return fmt.Errorf("core: submission.insurer_timeout must be > 0")
	}
	if c.Submission.PersistenceTimeout <= 0 {
		return fmt.Errorf("core: submission.persistence_timeout must be > 0")
	}
	if c.Reconcile.MaxAttempts <= 0 {
		return fmt.Errorf("core: reconcile.max_attempts must be > 0")
	}
	if c.Reconcile.InitialBackoff <= 0 || c.Reconcile.MaxBackoff < c.Reconcile.InitialBackoff {
		return fmt.Errorf("core: reconcile backoff window is invalid")
	}
	if c.Address.PincodeLength <= 0 {
		return fmt.Errorf("core: address.pincode_length must be > 0")
	}
	if c.Submission.RetainedOutcomes < 0 {
		return fmt.Errorf("core: submission.retained_outcomes must be >= 0")
	}
	if _, err := c.Validation.Location(); err != nil {
		return fmt.Errorf("core: validation.time_zone is invalid: %w", err)
	}
	return nil
}
