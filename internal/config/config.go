// Package config holds the payment core's immutable construction-time
// configuration: the payment window, discrepancy thresholds, and the secret
// master seed the Address Deriver is keyed with.
//
// Mirrors the teacher's internal/app.AppConfig in spirit (a plain struct
// with explicit constructors) without reaching for a config framework the
// teacher itself never used.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultPaymentWindow is how long a payment's receiving address stays
	// valid before expire_payment can act on it.
	DefaultPaymentWindow = 30 * time.Minute
	// DefaultPollInterval is advisory only; the core schedules no timers
	// of its own.
	DefaultPollInterval = 15 * time.Second
	// DefaultUnderpaymentTolerance is the ratio threshold below which a
	// shortfall is tolerated rather than flagged.
	DefaultUnderpaymentTolerance = 0.02
	// DefaultOverpaymentThreshold is the ratio threshold above which an
	// excess is flagged as an overpayment.
	DefaultOverpaymentThreshold = 0.001
	// DefaultUnderpaymentGracePeriod is how long after an underpayment is
	// first observed that additional funds may still arrive.
	DefaultUnderpaymentGracePeriod = 15 * time.Minute

	envMasterSeed              = "PAYMENTCORE_MASTER_SEED"
	envPaymentWindowMs         = "PAYMENTCORE_PAYMENT_WINDOW_MS"
	envPollIntervalMs          = "PAYMENTCORE_POLL_INTERVAL_MS"
	envUnderpaymentTolerance   = "PAYMENTCORE_UNDERPAYMENT_TOLERANCE"
	envOverpaymentThreshold    = "PAYMENTCORE_OVERPAYMENT_THRESHOLD"
	envUnderpaymentGraceMs     = "PAYMENTCORE_UNDERPAYMENT_GRACE_MS"
)

// TestSeed is the fixed seed used by tests; production always loads
// PAYMENTCORE_MASTER_SEED instead.
var TestSeed = []byte("payment-core-fixed-test-seed-do-not-use-in-prod")

// Config is immutable once constructed.
type Config struct {
	MasterSeed              []byte
	PaymentWindow           time.Duration
	PollInterval            time.Duration
	UnderpaymentTolerance   float64
	OverpaymentThreshold    float64
	UnderpaymentGracePeriod time.Duration
}

// Default returns the configuration described in spec §6, keyed with seed.
func Default(seed []byte) Config {
	return Config{
		MasterSeed:              seed,
		PaymentWindow:           DefaultPaymentWindow,
		PollInterval:            DefaultPollInterval,
		UnderpaymentTolerance:   DefaultUnderpaymentTolerance,
		OverpaymentThreshold:    DefaultOverpaymentThreshold,
		UnderpaymentGracePeriod: DefaultUnderpaymentGracePeriod,
	}
}

// Test returns the configuration used by the test suite: default thresholds
// keyed with the fixed test seed.
func Test() Config {
	return Default(TestSeed)
}

// FromEnv loads configuration from the process environment. The master seed
// is mandatory; everything else falls back to the spec's defaults.
func FromEnv() (Config, error) {
	seed := os.Getenv(envMasterSeed)
	if seed == "" {
		return Config{}, fmt.Errorf("%s is not set", envMasterSeed)
	}

	cfg := Default([]byte(seed))

	if v := os.Getenv(envPaymentWindowMs); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPaymentWindowMs, err)
		}
		cfg.PaymentWindow = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(envPollIntervalMs); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envPollIntervalMs, err)
		}
		cfg.PollInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv(envUnderpaymentTolerance); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envUnderpaymentTolerance, err)
		}
		cfg.UnderpaymentTolerance = f
	}
	if v := os.Getenv(envOverpaymentThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envOverpaymentThreshold, err)
		}
		cfg.OverpaymentThreshold = f
	}
	if v := os.Getenv(envUnderpaymentGraceMs); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envUnderpaymentGraceMs, err)
		}
		cfg.UnderpaymentGracePeriod = time.Duration(ms) * time.Millisecond
	}

	return cfg, nil
}
