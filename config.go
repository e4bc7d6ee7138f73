package authcore

import (
	"errors"
	"log"
	"time"

	"github.com/spf13/viper"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/password"
	"github.com/kestrelsec/authcore/secrets"
	"github.com/kestrelsec/authcore/twofactor"
)

const minSecretLength = 32

// Config is the engine's configuration. Zero values fall back to the
// defaults in defaultConfig; the two long-term secrets have no defaults
// and must be set.
type Config struct {
	// SigningSecret signs access and pending-2FA tokens (HS256).
	SigningSecret string
	// EncryptionSecret derives the at-rest encryption key for TOTP
	// seeds. Changing it makes existing seeds undecryptable.
	EncryptionSecret string
	// EncryptionSalt feeds the key derivation alongside the secret.
	// Empty selects the historical default salt with a startup warning,
	// because changing the salt after data exists silently breaks
	// decryption of previously encrypted secrets.
	EncryptionSalt string

	Issuer      string
	AccessTTL   time.Duration
	PendingTTL  time.Duration
	RefreshTTL  time.Duration
	TokenLeeway time.Duration

	TOTPIssuer string
	TOTPSkew   int

	// SessionPrefix and RevocationPrefix namespace Redis keys when the
	// Redis stores are in use.
	SessionPrefix    string
	RevocationPrefix string

	// SweepInterval drives StartSweeper. Zero disables periodic sweeps.
	SweepInterval time.Duration

	Password password.Config
	Audit    audit.Config
}

func defaultConfig() Config {
	return Config{
		Issuer:        "authcore",
		AccessTTL:     time.Hour,
		PendingTTL:    5 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		TOTPIssuer:    "authcore",
		TOTPSkew:      1,
		SweepInterval: time.Hour,
		Password:      password.DefaultConfig(),
		Audit:         audit.Config{Enabled: true, BufferSize: 256, DropIfFull: true},
	}
}

func (c *Config) applyDefaults() {
	def := defaultConfig()
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = def.AccessTTL
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = def.PendingTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = def.RefreshTTL
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = def.TOTPIssuer
	}
	if c.TOTPSkew == 0 {
		c.TOTPSkew = def.TOTPSkew
	}
	if c.Password == (password.Config{}) {
		c.Password = def.Password
	}
}

// Validate checks the parts that must be caught at startup rather than
// surfacing as runtime auth failures.
func (c *Config) Validate() error {
	if len(c.SigningSecret) < minSecretLength {
		return errors.New("authcore: signing secret must be at least 32 characters")
	}
	if len(c.EncryptionSecret) < minSecretLength {
		return ErrEncryptionMisconfigured
	}
	if c.EncryptionSalt == "" {
		log.Printf("authcore: AUTH_ENCRYPTION_SALT is not set; using the built-in default salt. " +
			"Set it explicitly before encrypting data, and never change it afterwards: " +
			"a different salt makes previously encrypted secrets undecryptable.")
	}
	if c.AccessTTL < 0 || c.PendingTTL < 0 || c.RefreshTTL < 0 {
		return errors.New("authcore: token lifetimes must not be negative")
	}
	return nil
}

func (c *Config) twoFactorConfig() twofactor.Config {
	return twofactor.Config{
		Issuer: c.TOTPIssuer,
		Skew:   c.TOTPSkew,
	}
}

// FromEnv builds a Config from AUTH_* environment variables, reading an
// optional .env file first. Env vars override the file.
func FromEnv() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.SetEnvPrefix("AUTH")
	v.AutomaticEnv()

	v.SetDefault("SIGNING_SECRET", "")
	v.SetDefault("ENCRYPTION_SECRET", "")
	v.SetDefault("ENCRYPTION_SALT", "")
	v.SetDefault("ISSUER", "authcore")
	v.SetDefault("ACCESS_TTL", "1h")
	v.SetDefault("PENDING_TTL", "5m")
	v.SetDefault("REFRESH_TTL", "168h")
	v.SetDefault("TOKEN_LEEWAY", "0s")
	v.SetDefault("TOTP_ISSUER", "authcore")
	v.SetDefault("TOTP_SKEW", 1)
	v.SetDefault("SESSION_PREFIX", "")
	v.SetDefault("REVOCATION_PREFIX", "")
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("AUDIT_BUFFER", 256)

	cfg := defaultConfig()
	cfg.SigningSecret = v.GetString("SIGNING_SECRET")
	cfg.EncryptionSecret = v.GetString("ENCRYPTION_SECRET")
	cfg.EncryptionSalt = v.GetString("ENCRYPTION_SALT")
	cfg.Issuer = v.GetString("ISSUER")
	cfg.AccessTTL = v.GetDuration("ACCESS_TTL")
	cfg.PendingTTL = v.GetDuration("PENDING_TTL")
	cfg.RefreshTTL = v.GetDuration("REFRESH_TTL")
	cfg.TokenLeeway = v.GetDuration("TOKEN_LEEWAY")
	cfg.TOTPIssuer = v.GetString("TOTP_ISSUER")
	cfg.TOTPSkew = v.GetInt("TOTP_SKEW")
	cfg.SessionPrefix = v.GetString("SESSION_PREFIX")
	cfg.RevocationPrefix = v.GetString("REVOCATION_PREFIX")
	cfg.SweepInterval = v.GetDuration("SWEEP_INTERVAL")
	cfg.Audit.Enabled = v.GetBool("AUDIT_ENABLED")
	cfg.Audit.BufferSize = v.GetInt("AUDIT_BUFFER")
	cfg.Audit.DropIfFull = true

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultEncryptionSalt is the historical salt applied when none is
// configured.
const DefaultEncryptionSalt = secrets.DefaultSalt
