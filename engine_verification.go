package identity

import (
	"context"
	"errors"
	"time"
)

// StartVerification mints a fresh verification token for the account and
// emails it. Any previously issued token is overwritten: exactly one token is
// live per account, and an orphaned older link fails with
// [ErrTokenNotFound], not [ErrTokenExpired].
//
// An already-verified account is a no-op success; nothing is minted or sent.
func (e *Engine) StartVerification(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil || e.tokens == nil {
		return ErrEngineNotReady
	}

	for attempt := 0; attempt < tokenInstallAttempts; attempt++ {
		account, err := e.store.FindByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return storeFailure(err)
		}
		if account.Verified {
			return nil
		}

		verifyToken, expiresAt, err := e.tokens.Issue(e.config.Verification.TokenTTL)
		if err != nil {
			return err
		}

		updated := *account
		updated.VerificationToken = verifyToken
		updated.VerificationTokenExpiry = expiresAt

		// Guarded on the token observed at read time: a redemption that
		// commits inside this window makes the write lose instead of
		// un-verifying the account, and the retry re-reads the flip.
		applied, err := e.store.UpdateIfToken(ctx, &updated, account.VerificationToken)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return storeFailure(err)
		}
		if !applied {
			continue
		}

		e.sendVerificationEmail(ctx, &updated, verifyToken)
		return nil
	}
	return storeFailure(errWriteContention)
}

// RedeemVerification consumes a verification token and flips the account to
// verified. The checks run in a fixed order:
//
//  1. token matches no account: [ErrTokenNotFound]
//  2. account already verified: [OutcomeAlreadyVerified], no error, no write
//     (re-clicking a link whose work is done is a success, not a failure)
//  3. token rotated away by a newer issuance: [ErrTokenNotFound]
//  4. token at or past expiry: [ErrTokenExpired], account untouched
//  5. otherwise the account becomes verified and the token is cleared
//
// The final write is conditional on the stored token still being this one, so
// two racing redemptions of the same token produce exactly one transition;
// the loser observes the winner's result.
func (e *Engine) RedeemVerification(ctx context.Context, tokenStr string) (VerificationOutcome, error) {
	if e == nil || e.store == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}
	if tokenStr == "" {
		e.metricInc(MetricVerificationFailure)
		return 0, ErrTokenNotFound
	}

	account, err := e.store.FindByToken(ctx, tokenStr)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricVerificationFailure)
			e.emitAudit(ctx, auditEventVerificationRedeem, false, "", ErrTokenNotFound, nil)
			return 0, ErrTokenNotFound
		}
		return 0, storeFailure(err)
	}

	if account.Verified {
		e.metricInc(MetricVerificationNoop)
		e.emitAudit(ctx, auditEventVerificationRedeem, true, account.AccountID, nil, func() map[string]string {
			return map[string]string{"outcome": "already_verified"}
		})
		return OutcomeAlreadyVerified, nil
	}

	if account.VerificationToken != tokenStr {
		// A newer token replaced this one while the account is still
		// unverified; the old link is dead.
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationRedeem, false, account.AccountID, ErrTokenNotFound, nil)
		return 0, ErrTokenNotFound
	}

	if e.tokens.IsExpired(account.VerificationTokenExpiry, time.Now()) {
		e.metricInc(MetricVerificationFailure)
		e.emitAudit(ctx, auditEventVerificationRedeem, false, account.AccountID, ErrTokenExpired, nil)
		return 0, ErrTokenExpired
	}

	updated := *account
	updated.Verified = true
	updated.VerificationToken = ""
	updated.VerificationTokenExpiry = time.Time{}

	applied, err := e.store.UpdateIfToken(ctx, &updated, tokenStr)
	if err != nil {
		return 0, storeFailure(err)
	}
	if !applied {
		return e.resolveLostRedemption(ctx, account.AccountID)
	}

	e.metricInc(MetricVerificationRedeemed)
	e.emitAudit(ctx, auditEventVerificationRedeem, true, account.AccountID, nil, func() map[string]string {
		return map[string]string{"outcome": "verified"}
	})
	return OutcomeVerified, nil
}

// resolveLostRedemption decides what a racing redeemer that lost the
// conditional write should report: if the winner verified the account this is
// the idempotent already-verified success, otherwise the token was rotated
// away underneath us and is simply gone.
func (e *Engine) resolveLostRedemption(ctx context.Context, accountID string) (VerificationOutcome, error) {
	current, err := e.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricVerificationFailure)
			return 0, ErrTokenNotFound
		}
		return 0, storeFailure(err)
	}
	if current.Verified {
		e.metricInc(MetricVerificationNoop)
		e.emitAudit(ctx, auditEventVerificationRedeem, true, accountID, nil, func() map[string]string {
			return map[string]string{"outcome": "already_verified"}
		})
		return OutcomeAlreadyVerified, nil
	}
	e.metricInc(MetricVerificationFailure)
	e.emitAudit(ctx, auditEventVerificationRedeem, false, accountID, ErrTokenNotFound, nil)
	return 0, ErrTokenNotFound
}
