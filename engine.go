package identity

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/tablecritic/identity/mail"
	"github.com/tablecritic/identity/password"
	"github.com/tablecritic/identity/session"
	"github.com/tablecritic/identity/token"
)

// tokenInstallAttempts bounds how often a token-installing write retries
// after losing its guard to a concurrent redemption.
const tokenInstallAttempts = 3

// errWriteContention reports a read-modify-write that kept losing to
// concurrent writers on the same account record.
var errWriteContention = errors.New("account record write contention")

// Engine is the identity core: registration, login, email verification,
// password reset, security questions, and session issuance. Build one through
// [Builder]; a zero Engine is not usable.
//
// Engine instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	store      AccountStore
	dispatcher EmailDispatcher
	hasher     *password.Bcrypt
	tokens     *token.Issuer
	sessions   *session.Authority
	composer   *mail.Composer
	audit      *auditDispatcher
	metrics    *Metrics
	logger     zerolog.Logger

	// decoyHash is verified against on unknown-user logins so the response
	// time does not reveal whether the username exists.
	decoyHash string
}

// Close flushes and stops the audit dispatcher. Safe on a nil engine.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login authenticates username and password and returns the account's
// identity descriptor. Unknown username, wrong password, and empty input all
// fail with [ErrInvalidCredentials]; nothing in the error, and as little as
// possible in the timing, distinguishes them.
//
// An unverified account still logs in: Identity.Verified carries the flag and
// the caller decides what an unverified account may do.
func (e *Engine) Login(ctx context.Context, username, pass string) (*Identity, error) {
	if e == nil || e.hasher == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	if username == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "empty_input",
			}
		})
		return nil, ErrInvalidCredentials
	}

	account, err := e.store.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, storeFailure(err)
		}
		// Burn a comparable amount of work before failing.
		e.hasher.Verify(pass, e.decoyHash)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "account_not_found",
			}
		})
		return nil, ErrInvalidCredentials
	}

	if !e.hasher.Verify(pass, account.CredentialHash) {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, account.AccountID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{
				"identifier": username,
				"reason":     "credential_mismatch",
			}
		})
		return nil, ErrInvalidCredentials
	}
	pass = ""

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, account.AccountID, nil, nil)

	return &Identity{
		AccountID: account.AccountID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		Verified:  account.Verified,
	}, nil
}

// IssueSession signs session claims for an authenticated identity. The claims
// snapshot the role at this instant; a later role change does not propagate
// into outstanding sessions. persistent selects the long-lived TTL for
// remember-me sessions.
func (e *Engine) IssueSession(ctx context.Context, ident *Identity, persistent bool) (string, *session.Claims, error) {
	if e == nil || e.sessions == nil {
		return "", nil, ErrEngineNotReady
	}
	if ident == nil || ident.AccountID == "" {
		return "", nil, ErrSessionInvalid
	}

	signed, claims, err := e.sessions.Issue(ident.AccountID, ident.Username, string(ident.Role), persistent)
	if err != nil {
		e.emitAudit(ctx, auditEventSessionIssued, false, ident.AccountID, err, nil)
		return "", nil, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, auditEventSessionIssued, true, ident.AccountID, nil, func() map[string]string {
		return map[string]string{
			"persistent": strconv.FormatBool(persistent),
		}
	})
	return signed, claims, nil
}

// ParseSession verifies a presented session token and returns its claims.
// Any signature, expiry, or claim failure maps to [ErrSessionInvalid].
func (e *Engine) ParseSession(tokenStr string) (*session.Claims, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.sessions.Parse(tokenStr)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// storeFailure wraps a collaborator error in ErrStoreUnavailable unless it
// already is one.
func storeFailure(err error) error {
	if errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return errors.Join(ErrStoreUnavailable, err)
}
