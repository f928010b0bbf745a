package identity

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/tablecritic/identity/mail"
	"github.com/tablecritic/identity/password"
	"github.com/tablecritic/identity/session"
	"github.com/tablecritic/identity/token"
)

// Builder assembles an [Engine]. A Builder is single-use: Build can be called
// once.
type Builder struct {
	config Config

	store      AccountStore
	dispatcher EmailDispatcher
	auditSink  AuditSink
	logger     zerolog.Logger
	hasLogger  bool

	built bool
}

// New returns a Builder preloaded with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration. Call it before the other
// With* methods that tweak individual settings.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccountStore sets the persistence collaborator. Required.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithEmailDispatcher sets the email delivery collaborator. Required.
func (b *Builder) WithEmailDispatcher(dispatcher EmailDispatcher) *Builder {
	b.dispatcher = dispatcher
	return b
}

// WithLogger sets the engine logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.hasLogger = true
	return b
}

// WithAuditSink sets the audit destination and enables audit dispatch.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	b.config.Audit.Enabled = sink != nil
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires every collaborator, and returns
// the engine. The engine owns the audit dispatcher goroutine; call
// [Engine.Close] when done with it.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.dispatcher == nil {
		return nil, errors.New("email dispatcher required")
	}

	hasher, err := password.New(password.Config{Cost: cfg.Password.Cost})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewAuthority(session.Config{
		SigningMethod: session.SigningMethod(cfg.Session.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
		PublicKey:     cloneBytes(cfg.Session.PublicKey),
		Issuer:        cfg.Session.Issuer,
		TTL:           cfg.Session.TTL,
		PersistentTTL: cfg.Session.PersistentTTL,
		Leeway:        cfg.Session.Leeway,
	})
	if err != nil {
		return nil, err
	}

	// Hashed once here so unknown-user logins can verify against it and pay
	// the same bcrypt cost a real account would.
	decoyHash, err := hasher.Hash("tablecritic.decoy.credential")
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.hasLogger {
		logger = b.logger
	}

	engine := &Engine{
		config:     cfg,
		store:      b.store,
		dispatcher: b.dispatcher,
		hasher:     hasher,
		tokens:     token.NewIssuer(),
		sessions:   sessions,
		composer: mail.NewComposer(
			cfg.Mail.AppName,
			cfg.Mail.BaseURL,
			cfg.Mail.VerificationPath,
			cfg.Mail.ResetPath,
		),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger,
		decoyHash: decoyHash,
	}

	b.built = true
	return engine, nil
}
