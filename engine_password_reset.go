package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"
)

// RequestPasswordReset starts a reset for the account matching identifier.
// The identifier is tried as a username first; only if no username matches is
// it tried as an email address.
//
// The call returns nil whether or not an account matched. An attacker probing
// identifiers learns nothing from the response; a short random delay on the
// miss path keeps the timing from telling the story instead.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier string) error {
	if e == nil || e.store == nil || e.tokens == nil {
		return ErrEngineNotReady
	}
	if identifier == "" {
		return sleepEnumerationDelay(ctx)
	}

	account, err := e.findByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventResetRequest, true, "", nil, func() map[string]string {
				return map[string]string{"matched": "false"}
			})
			return sleepEnumerationDelay(ctx)
		}
		return storeFailure(err)
	}

	resetToken, err := e.installResetToken(ctx, account)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Account disappeared mid-flight; indistinguishable from a miss.
			return sleepEnumerationDelay(ctx)
		}
		return err
	}

	if e.dispatcher != nil && e.composer != nil {
		msg := e.composer.ResetMessage(account.Username, resetToken)
		if sendErr := e.dispatcher.Send(ctx, account.Email, msg.Subject, msg.TextBody, msg.HTMLBody); sendErr != nil {
			// The caller still gets nil: surfacing the mail failure would
			// confirm the identifier matched an account.
			e.logger.Error().Err(sendErr).Str("account_id", account.AccountID).Msg("reset email delivery failed")
		}
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditEventResetRequest, true, account.AccountID, nil, func() map[string]string {
		return map[string]string{"matched": "true"}
	})
	return nil
}

// RedeemPasswordReset consumes a reset token and replaces the account
// credential with newPassword. The token is single-use: the conditional write
// that installs the new hash also clears the token, so a second redemption
// fails with [ErrTokenNotFound]. An expired token leaves the credential
// untouched.
func (e *Engine) RedeemPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if e == nil || e.store == nil || e.tokens == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if tokenStr == "" {
		e.metricInc(MetricResetFailure)
		return ErrTokenNotFound
	}
	if len(newPassword) < e.config.Password.MinLength {
		e.metricInc(MetricResetFailure)
		return ErrPasswordPolicy
	}

	account, err := e.store.FindByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricResetFailure)
			e.emitAudit(ctx, auditEventResetRedeem, false, "", ErrTokenNotFound, nil)
			return ErrTokenNotFound
		}
		return storeFailure(err)
	}

	if account.VerificationToken != tokenStr {
		// Consumed or rotated away; reset tokens are strictly single-use.
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetRedeem, false, account.AccountID, ErrTokenNotFound, nil)
		return ErrTokenNotFound
	}

	if e.tokens.IsExpired(account.VerificationTokenExpiry, time.Now()) {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetRedeem, false, account.AccountID, ErrTokenExpired, nil)
		return ErrTokenExpired
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	newPassword = ""

	updated := *account
	updated.CredentialHash = newHash
	updated.VerificationToken = ""
	updated.VerificationTokenExpiry = time.Time{}

	applied, err := e.store.UpdateIfToken(ctx, &updated, tokenStr)
	if err != nil {
		return storeFailure(err)
	}
	if !applied {
		e.metricInc(MetricResetFailure)
		e.emitAudit(ctx, auditEventResetRedeem, false, account.AccountID, ErrTokenNotFound, nil)
		return ErrTokenNotFound
	}

	e.metricInc(MetricResetRedeemed)
	e.emitAudit(ctx, auditEventResetRedeem, true, account.AccountID, nil, nil)
	return nil
}

// installResetToken mints a reset token and writes it onto the account,
// guarded on the token observed at read time. A redemption that commits
// inside the read-to-write window makes the write lose instead of restoring
// the pre-reset credential; the retry starts over from a fresh read.
func (e *Engine) installResetToken(ctx context.Context, account *Account) (string, error) {
	for attempt := 0; attempt < tokenInstallAttempts; attempt++ {
		resetToken, expiresAt, err := e.tokens.Issue(e.config.Reset.TokenTTL)
		if err != nil {
			return "", err
		}

		updated := *account
		updated.VerificationToken = resetToken
		updated.VerificationTokenExpiry = expiresAt

		applied, err := e.store.UpdateIfToken(ctx, &updated, account.VerificationToken)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return "", ErrAccountNotFound
			}
			return "", storeFailure(err)
		}
		if applied {
			return resetToken, nil
		}

		account, err = e.store.FindByID(ctx, account.AccountID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return "", ErrAccountNotFound
			}
			return "", storeFailure(err)
		}
	}
	return "", storeFailure(errWriteContention)
}

// findByIdentifier resolves identifier as username first, then email. An
// identifier matching one account's username and another's email always
// resolves to the username match.
func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (*Account, error) {
	account, err := e.store.FindByUsername(ctx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	return e.store.FindByEmail(ctx, identifier)
}

func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return err
	}

	delay := time.Duration(minMs+n.Int64()) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
