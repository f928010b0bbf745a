package identity

import (
	"context"
	"time"
)

// Role is the closed set of account roles. Authorization elsewhere in the
// application keys off this value; there is no free-form role registration.
type Role string

const (
	// RoleReviewer is a regular account that writes reviews and books tables.
	RoleReviewer Role = "reviewer"
	// RoleRestaurantRep is an account representing a restaurant.
	RoleRestaurantRep Role = "restaurantRep"
)

func validRole(r Role) bool {
	switch r {
	case RoleReviewer, RoleRestaurantRep:
		return true
	default:
		return false
	}
}

// SecurityQuestion is one stored question/answer pair. AnswerHash is produced
// by the same hasher as the password hash; the plaintext answer is never
// persisted.
type SecurityQuestion struct {
	Question   string
	AnswerHash string
}

// Account is the stored identity record. AccountID is assigned at creation
// and never reused; Username and Email are unique across all accounts.
//
// VerificationToken and VerificationTokenExpiry are set only while a
// verification or password-reset request is outstanding. A zero expiry means
// no token is pending.
type Account struct {
	AccountID               string
	Username                string
	Email                   string
	CredentialHash          string
	Role                    Role
	SecurityQuestions       [3]SecurityQuestion
	Verified                bool
	VerificationToken       string
	VerificationTokenExpiry time.Time
	CreatedAt               time.Time
}

// TokenPending reports whether a verification or reset token is outstanding
// on the account.
func (a *Account) TokenPending() bool {
	return a.VerificationToken != "" && !a.VerificationTokenExpiry.IsZero()
}

// Identity is the authenticated descriptor returned by [Engine.Login].
// Verified is reported, not enforced: the caller decides whether an
// unverified account may reach the rest of the application.
type Identity struct {
	AccountID string
	Username  string
	Email     string
	Role      Role
	Verified  bool
}

// SecurityQA is one plaintext question/answer pair supplied at registration.
type SecurityQA struct {
	Question string
	Answer   string
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	Role      Role
	Questions [3]SecurityQA
}

// VerificationOutcome is returned by [Engine.RedeemVerification].
type VerificationOutcome int

const (
	// OutcomeVerified means this call flipped the account to verified.
	OutcomeVerified VerificationOutcome = iota
	// OutcomeAlreadyVerified means the account was verified before this call;
	// redeeming again is an idempotent success, not an error.
	OutcomeAlreadyVerified
)

// AccountStore is the persistence collaborator the host application must
// implement. Find methods return [ErrAccountNotFound] when no record
// matches; any other error is treated as a collaborator failure.
//
// FindByToken resolves a token to the account it was most recently issued
// to. A consumed token should keep resolving until its natural expiry (the
// engine compares the stored token itself and turns a re-clicked verified
// link into an idempotent success); a token replaced by a newer one may stop
// resolving immediately.
//
// UpdateIfToken is the conditional write every engine token mutation goes
// through, installation and redemption alike: it persists the account only
// if the stored record still carries expectedToken, and reports false
// (without error) otherwise. The comparison and write must be atomic per
// account record. Update is the unconditional rewrite for host-side record
// maintenance (role or profile changes); the engine never uses it.
type AccountStore interface {
	FindByID(ctx context.Context, accountID string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByToken(ctx context.Context, token string) (*Account, error)
	Insert(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error
	UpdateIfToken(ctx context.Context, account *Account, expectedToken string) (bool, error)
}

// EmailDispatcher delivers a composed message. The engine owns subject and
// body (including the token link); transport is the implementation's concern.
// mail.SMTPDispatcher is a ready-made implementation.
type EmailDispatcher interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}
