package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Register creates a new account: input validation, uniqueness, password and
// security-answer hashing, then verification kickoff. The returned Identity
// has Verified=false; the verification email carries the token that flips it.
//
// A failed verification email does not undo the registration. The account
// exists, the token is stored, and [Engine.StartVerification] reissues the
// email on demand.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Identity, error) {
	if e == nil || e.hasher == nil || e.store == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	if err := e.validateRegistration(req); err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
			return map[string]string{
				"identifier": req.Username,
				"reason":     "invalid_input",
			}
		})
		return nil, err
	}

	credentialHash, err := e.hasher.Hash(req.Password)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}
	req.Password = ""

	var questions [3]SecurityQuestion
	for i, qa := range req.Questions {
		answerHash, err := e.hasher.HashAnswer(qa.Answer)
		if err != nil {
			e.metricInc(MetricRegisterFailure)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
			return nil, err
		}
		questions[i] = SecurityQuestion{
			Question:   strings.TrimSpace(qa.Question),
			AnswerHash: answerHash,
		}
	}

	verifyToken, expiresAt, err := e.tokens.Issue(e.config.Verification.TokenTTL)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, err
	}

	account := &Account{
		AccountID:               uuid.NewString(),
		Username:                req.Username,
		Email:                   req.Email,
		CredentialHash:          credentialHash,
		Role:                    req.Role,
		SecurityQuestions:       questions,
		Verified:                false,
		VerificationToken:       verifyToken,
		VerificationTokenExpiry: expiresAt,
		CreatedAt:               time.Now().UTC(),
	}

	if err := e.store.Insert(ctx, account); err != nil {
		if errors.Is(err, ErrUsernameTaken) || errors.Is(err, ErrEmailTaken) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, func() map[string]string {
				return map[string]string{
					"identifier": req.Username,
					"reason":     "duplicate",
				}
			})
			return nil, err
		}
		e.metricInc(MetricRegisterFailure)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", err, nil)
		return nil, storeFailure(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, account.AccountID, nil, func() map[string]string {
		return map[string]string{
			"identifier": account.Username,
			"role":       string(account.Role),
		}
	})

	e.sendVerificationEmail(ctx, account, verifyToken)

	return &Identity{
		AccountID: account.AccountID,
		Username:  account.Username,
		Email:     account.Email,
		Role:      account.Role,
		Verified:  false,
	}, nil
}

func (e *Engine) validateRegistration(req RegisterRequest) error {
	if req.Username == "" || req.Email == "" {
		return ErrRegistrationInvalid
	}
	if !strings.Contains(req.Email, "@") {
		return ErrRegistrationInvalid
	}
	if !validRole(req.Role) {
		return ErrRoleInvalid
	}
	if len(req.Password) < e.config.Password.MinLength {
		return ErrPasswordPolicy
	}
	for _, qa := range req.Questions {
		if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
			return ErrRegistrationInvalid
		}
	}
	return nil
}

func (e *Engine) sendVerificationEmail(ctx context.Context, account *Account, verifyToken string) {
	if e.dispatcher == nil || e.composer == nil {
		return
	}

	msg := e.composer.VerificationMessage(account.Username, verifyToken)
	err := e.dispatcher.Send(ctx, account.Email, msg.Subject, msg.TextBody, msg.HTMLBody)
	if err != nil {
		e.logger.Error().Err(err).Str("account_id", account.AccountID).Msg("verification email delivery failed")
	}

	e.metricInc(MetricVerificationStarted)
	e.emitAudit(ctx, auditEventVerificationStart, err == nil, account.AccountID, err, nil)
}
