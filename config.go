package identity

import (
	"errors"
	"strings"
	"time"
)

// Config defines a public type used by identity APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	Password     PasswordConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Session      SessionConfig
	Mail         MailConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig controls the bcrypt hasher shared by passwords and security
// answers.
type PasswordConfig struct {
	Cost      int
	MinLength int
}

/*
====================================
TOKEN CONFIG
====================================
*/

// VerificationConfig controls email-ownership verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// ResetConfig controls password-reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls signed session claims.
type SessionConfig struct {
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	TTL           time.Duration
	PersistentTTL time.Duration
	Leeway        time.Duration
}

/*
====================================
MAIL CONFIG
====================================
*/

// MailConfig controls how verification and reset links are composed. BaseURL
// is the application origin (no trailing slash); the paths receive the token
// as a query parameter.
type MailConfig struct {
	BaseURL          string
	VerificationPath string
	ResetPath        string
	AppName          string
}

// AuditConfig defines a public type used by identity APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by identity APIs.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Cost:      10,
			MinLength: 8,
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			TokenTTL: time.Hour,
		},
		Session: SessionConfig{
			SigningMethod: "ed25519",
			TTL:           24 * time.Hour,
			PersistentTTL: 30 * 24 * time.Hour,
		},
		Mail: MailConfig{
			VerificationPath: "/account/verify",
			ResetPath:        "/account/reset",
			AppName:          "TableCritic",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for values the engine cannot operate
// with. Signing key material is validated by session.NewAuthority.
func (c Config) Validate() error {
	if c.Password.Cost < 4 || c.Password.Cost > 31 {
		return errors.New("password cost must be within bcrypt bounds (4..31)")
	}
	if c.Password.MinLength < 1 {
		return errors.New("password minimum length must be >= 1")
	}
	if c.Verification.TokenTTL <= 0 {
		return errors.New("verification token TTL must be positive")
	}
	if c.Reset.TokenTTL <= 0 {
		return errors.New("reset token TTL must be positive")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	if c.Session.PersistentTTL < c.Session.TTL {
		return errors.New("persistent session TTL must be >= session TTL")
	}
	if c.Mail.BaseURL == "" {
		return errors.New("mail base URL required")
	}
	if strings.HasSuffix(c.Mail.BaseURL, "/") {
		return errors.New("mail base URL must not end with a slash")
	}
	if c.Mail.VerificationPath == "" || c.Mail.ResetPath == "" {
		return errors.New("mail link paths required")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
