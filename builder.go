package authcore

import (
	"database/sql"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelsec/authcore/internal/audit"
	"github.com/kestrelsec/authcore/metrics"
	"github.com/kestrelsec/authcore/password"
	"github.com/kestrelsec/authcore/revocation"
	"github.com/kestrelsec/authcore/secrets"
	"github.com/kestrelsec/authcore/session"
	"github.com/kestrelsec/authcore/token"
	"github.com/kestrelsec/authcore/twofactor"
)

// Builder assembles an Engine. Provide exactly one storage backend
// (Redis or a database handle) plus the user directory, then Build.
type Builder struct {
	config Config

	redis *redis.Client
	db    *sql.DB

	sessions    session.Store
	ledger      revocation.Ledger
	directory   UserDirectory
	auditSink   AuditSink
	promReg     prometheus.Registerer
	skipMetrics bool
}

// New returns a Builder with default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis selects Redis-backed session and revocation storage.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithDatabase selects Postgres-backed session and revocation storage.
// Open the handle with the pgx stdlib driver: sql.Open("pgx", dsn).
func (b *Builder) WithDatabase(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithSessionStore overrides the session store built from the storage
// backend, for custom implementations.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessions = store
	return b
}

// WithRevocationLedger overrides the revocation ledger built from the
// storage backend.
func (b *Builder) WithRevocationLedger(ledger revocation.Ledger) *Builder {
	b.ledger = ledger
	return b
}

// WithUserDirectory sets the credential lookup collaborator. Required.
func (b *Builder) WithUserDirectory(directory UserDirectory) *Builder {
	b.directory = directory
	return b
}

// WithAuditSink sets the destination for security events. Without one,
// events are dropped.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsRegistry registers the engine's Prometheus counters on reg
// instead of the default registry.
func (b *Builder) WithMetricsRegistry(reg prometheus.Registerer) *Builder {
	b.promReg = reg
	return b
}

// WithoutMetrics disables Prometheus counters entirely.
func (b *Builder) WithoutMetrics() *Builder {
	b.skipMetrics = true
	return b
}

// Build validates configuration, derives the encryption key (the one
// deliberately slow step, done here so request handling never pays for
// it), and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	b.config.applyDefaults()
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("authcore: user directory is required")
	}

	sessions := b.sessions
	ledger := b.ledger
	switch {
	case sessions != nil && ledger != nil:
		// Fully custom storage.
	case b.redis != nil:
		if sessions == nil {
			sessions = session.NewRedisStore(b.redis, b.config.SessionPrefix)
		}
		if ledger == nil {
			ledger = revocation.NewRedisLedger(b.redis, b.config.RevocationPrefix)
		}
	case b.db != nil:
		if sessions == nil {
			sessions = session.NewPostgresStore(b.db)
		}
		if ledger == nil {
			ledger = revocation.NewPostgresLedger(b.db)
		}
	default:
		return nil, errors.New("authcore: a storage backend is required (WithRedis or WithDatabase)")
	}

	cipher, err := secrets.NewCipher(b.config.EncryptionSecret, b.config.EncryptionSalt)
	if err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(token.Config{
		SigningSecret: b.config.SigningSecret,
		Issuer:        b.config.Issuer,
		AccessTTL:     b.config.AccessTTL,
		PendingTTL:    b.config.PendingTTL,
		Leeway:        b.config.TokenLeeway,
	})
	if err != nil {
		return nil, err
	}

	verifier, err := twofactor.NewVerifier(b.config.twoFactorConfig(), cipher)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.config.Password)
	if err != nil {
		return nil, err
	}

	// Hashing a throwaway value keeps not-found and wrong-password
	// timings in the same ballpark.
	decoyHash, err := hasher.Hash("authcore-decoy-credential")
	if err != nil {
		return nil, err
	}

	var m *metrics.Metrics
	if !b.skipMetrics {
		reg := b.promReg
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		m = metrics.New(reg)
	}

	e := &Engine{
		config:    b.config,
		cipher:    cipher,
		codec:     codec,
		verifier:  verifier,
		hasher:    hasher,
		decoyHash: decoyHash,
		sessions:  sessions,
		ledger:    ledger,
		directory: b.directory,
		metrics:   m,
		audit:     audit.NewDispatcher(b.config.Audit, b.auditSink),
		userLocks: newKeyedMutex(),
	}
	return e, nil
}
