package keygate

import (
	"errors"
	"time"

	"github.com/keygatelabs/keygate/rbac"
	"github.com/keygatelabs/keygate/token"
)

// Config holds every engine tuning knob. Construct from [DefaultConfig],
// adjust, and pass to [Builder.WithConfig]; the Engine treats its config as
// immutable after Build.
type Config struct {
	Token   TokenConfig
	OTP     OTPConfig
	Lockout LockoutConfig
	Keys    KeysConfig
	Routes  RoutesConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// TokenConfig configures the session token issuer.
type TokenConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// OTPConfig configures challenge generation and verification.
type OTPConfig struct {
	Digits        int
	TTL           time.Duration
	MaxAttempts   int
	RequestLimit  int
	RequestWindow time.Duration
	RedisPrefix   string
}

// LockoutConfig configures the account guard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// KeysConfig configures the key lifecycle store.
type KeysConfig struct {
	RedisPrefix        string
	DefaultMaxDuration time.Duration
}

// RoutesConfig overrides the default route authorization table. Empty
// fields keep the defaults.
type RoutesConfig struct {
	Rules  []rbac.RouteRule
	Public []string
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the documented defaults: 6-digit codes valid 5
// minutes with 5 attempts, 3 requests per trailing 5-minute window, lockout
// after 5 failures for 2 hours, and 7-day tokens.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:           7 * 24 * time.Hour,
			SigningMethod: string(token.MethodEd25519),
			Issuer:        "keygate",
		},
		OTP: OTPConfig{
			Digits:        6,
			TTL:           5 * time.Minute,
			MaxAttempts:   5,
			RequestLimit:  3,
			RequestWindow: 5 * time.Minute,
			RedisPrefix:   "kgc",
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  2 * time.Hour,
		},
		Keys: KeysConfig{
			RedisPrefix:        "kgk",
			DefaultMaxDuration: 8 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	switch token.SigningMethod(cfg.Token.SigningMethod) {
	case token.MethodEd25519, token.MethodHS256:
	default:
		return errors.New("unsupported token signing method")
	}

	if cfg.OTP.Digits < 4 || cfg.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if cfg.OTP.TTL <= 0 {
		return errors.New("otp TTL must be positive")
	}
	if cfg.OTP.MaxAttempts <= 0 {
		return errors.New("otp max attempts must be positive")
	}
	if cfg.OTP.RequestLimit < 0 || cfg.OTP.RequestWindow < 0 {
		return errors.New("otp request limit and window must not be negative")
	}
	if cfg.OTP.RequestLimit > 0 && cfg.OTP.RequestWindow == 0 {
		return errors.New("otp request limit requires a window")
	}

	if cfg.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if cfg.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}

	if cfg.Keys.DefaultMaxDuration <= 0 {
		return errors.New("default key duration must be positive")
	}

	if cfg.Audit.Enabled && cfg.Audit.BufferSize <= 0 {
		return errors.New("audit buffer size must be positive when enabled")
	}

	return nil
}

// cloneConfig deep-copies the byte-slice and slice fields so a caller
// mutating its Config after Build cannot reach into the engine.
func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	out.Routes.Rules = append([]rbac.RouteRule(nil), cfg.Routes.Rules...)
	out.Routes.Public = append([]string(nil), cfg.Routes.Public...)
	return out
}
