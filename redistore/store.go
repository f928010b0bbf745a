// Package redistore is a Redis-backed implementation of the engine's
// AccountStore. Records are stored as JSON under an ID key, with separate
// index keys mapping username, email, and pending token to the account ID.
// Index lookups are exact-match; any username or email normalization is the
// caller's policy and happens before the store sees the value.
package redistore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablecritic/identity"
)

const watchRetries = 3

// Store implements identity.AccountStore on a Redis client.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Store. prefix namespaces all keys; it defaults to "acct".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "acct"
	}
	return &Store{
		redis:  client,
		prefix: prefix,
	}
}

func (s *Store) idKey(accountID string) string {
	return s.prefix + ":id:" + accountID
}

func (s *Store) usernameKey(username string) string {
	return s.prefix + ":uname:" + username
}

func (s *Store) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *Store) tokenKey(token string) string {
	return s.prefix + ":tok:" + token
}

type accountRecord struct {
	AccountID               string                  `json:"account_id"`
	Username                string                  `json:"username"`
	Email                   string                  `json:"email"`
	CredentialHash          string                  `json:"credential_hash"`
	Role                    string                  `json:"role"`
	SecurityQuestions       [3]securityQuestionJSON `json:"security_questions"`
	Verified                bool                    `json:"verified"`
	VerificationToken       string                  `json:"verification_token,omitempty"`
	VerificationTokenExpiry int64                   `json:"verification_token_expiry,omitempty"`
	CreatedAt               int64                   `json:"created_at"`
}

type securityQuestionJSON struct {
	Question   string `json:"q"`
	AnswerHash string `json:"a"`
}

func encodeAccount(account *identity.Account) ([]byte, error) {
	rec := accountRecord{
		AccountID:      account.AccountID,
		Username:       account.Username,
		Email:          account.Email,
		CredentialHash: account.CredentialHash,
		Role:           string(account.Role),
		Verified:       account.Verified,
		CreatedAt:      account.CreatedAt.Unix(),
	}
	for i, q := range account.SecurityQuestions {
		rec.SecurityQuestions[i] = securityQuestionJSON{
			Question:   q.Question,
			AnswerHash: q.AnswerHash,
		}
	}
	if account.TokenPending() {
		rec.VerificationToken = account.VerificationToken
		rec.VerificationTokenExpiry = account.VerificationTokenExpiry.Unix()
	}
	return json.Marshal(rec)
}

func decodeAccount(data []byte) (*identity.Account, error) {
	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}

	account := &identity.Account{
		AccountID:         rec.AccountID,
		Username:          rec.Username,
		Email:             rec.Email,
		CredentialHash:    rec.CredentialHash,
		Role:              identity.Role(rec.Role),
		Verified:          rec.Verified,
		VerificationToken: rec.VerificationToken,
		CreatedAt:         time.Unix(rec.CreatedAt, 0).UTC(),
	}
	for i, q := range rec.SecurityQuestions {
		account.SecurityQuestions[i] = identity.SecurityQuestion{
			Question:   q.Question,
			AnswerHash: q.AnswerHash,
		}
	}
	if rec.VerificationTokenExpiry != 0 {
		account.VerificationTokenExpiry = time.Unix(rec.VerificationTokenExpiry, 0).UTC()
	}
	return account, nil
}

// FindByID returns the account stored under accountID.
func (s *Store) FindByID(ctx context.Context, accountID string) (*identity.Account, error) {
	return s.getRecord(ctx, s.idKey(accountID))
}

// FindByUsername resolves username through its index key.
func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.Account, error) {
	return s.findViaIndex(ctx, s.usernameKey(username))
}

// FindByEmail resolves email through its index key.
func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.Account, error) {
	return s.findViaIndex(ctx, s.emailKey(email))
}

// FindByToken resolves a verification or reset token through its index key.
// A consumed token's index entry is kept until its original expiry so a
// re-clicked link still resolves to the account; the engine decides what the
// token is still good for.
func (s *Store) FindByToken(ctx context.Context, token string) (*identity.Account, error) {
	if token == "" {
		return nil, identity.ErrAccountNotFound
	}
	return s.findViaIndex(ctx, s.tokenKey(token))
}

func (s *Store) findViaIndex(ctx context.Context, indexKey string) (*identity.Account, error) {
	accountID, err := s.redis.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, identity.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	return s.getRecord(ctx, s.idKey(accountID))
}

func (s *Store) getRecord(ctx context.Context, key string) (*identity.Account, error) {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, identity.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}

	account, decErr := decodeAccount(data)
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, decErr)
	}
	return account, nil
}

// Insert persists a new account. Username and email uniqueness is enforced by
// claiming the index keys with SETNX before the record is written; a lost
// claim is rolled back so a failed insert leaves no keys behind.
func (s *Store) Insert(ctx context.Context, account *identity.Account) error {
	unameKey := s.usernameKey(account.Username)
	emailKey := s.emailKey(account.Email)

	ok, err := s.redis.SetNX(ctx, unameKey, account.AccountID, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	if !ok {
		return identity.ErrUsernameTaken
	}

	ok, err = s.redis.SetNX(ctx, emailKey, account.AccountID, 0).Result()
	if err != nil {
		s.redis.Del(ctx, unameKey)
		return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	if !ok {
		s.redis.Del(ctx, unameKey)
		return identity.ErrEmailTaken
	}

	data, err := encodeAccount(account)
	if err != nil {
		s.redis.Del(ctx, unameKey, emailKey)
		return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, s.idKey(account.AccountID), data, 0)
	if account.TokenPending() {
		pipe.Set(ctx, s.tokenKey(account.VerificationToken), account.AccountID, time.Until(account.VerificationTokenExpiry))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.redis.Del(ctx, unameKey, emailKey)
		return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	return nil
}

// Update rewrites an existing account record and keeps the token index in
// step: the previous token's index entry is removed when the token changed.
// The read of the previous record and the rewrite run under WATCH so a
// concurrent writer aborts the transaction instead of leaving the index
// keyed off a stale read.
func (s *Store) Update(ctx context.Context, account *identity.Account) error {
	key := s.idKey(account.AccountID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return identity.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		previous, err := decodeAccount(data)
		if err != nil {
			return err
		}

		encoded, err := encodeAccount(account)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			s.queueTokenIndex(ctx, pipe, previous, account)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, identity.ErrAccountNotFound) {
			return identity.ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: update contention on account record", identity.ErrStoreUnavailable)
}

// UpdateIfToken persists account only if the stored record still carries
// expectedToken, reporting false without error when another writer got there
// first. The check and write run under WATCH so a concurrent rewrite between
// them aborts the transaction instead of clobbering it.
func (s *Store) UpdateIfToken(ctx context.Context, account *identity.Account, expectedToken string) (bool, error) {
	key := s.idKey(account.AccountID)
	applied := false

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return identity.ErrAccountNotFound
		}
		if err != nil {
			return err
		}

		stored, err := decodeAccount(data)
		if err != nil {
			return err
		}
		if stored.VerificationToken != expectedToken {
			return nil
		}

		encoded, err := encodeAccount(account)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			s.queueTokenIndex(ctx, pipe, stored, account)
			return nil
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	}

	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return applied, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, identity.ErrAccountNotFound) {
			return false, identity.ErrAccountNotFound
		}
		return false, fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
	}
	// Every retry hit a concurrent write; whoever kept winning has rotated
	// the token, so the guard no longer holds.
	return false, nil
}

// queueTokenIndex keeps the token index in step with a record rewrite. A
// rotated-away token is delisted immediately; a consumed token (cleared with
// no successor) keeps its entry, which expires with the key's original TTL.
func (s *Store) queueTokenIndex(ctx context.Context, pipe redis.Pipeliner, previous, next *identity.Account) {
	rotated := previous.VerificationToken != "" &&
		next.TokenPending() &&
		next.VerificationToken != previous.VerificationToken
	if rotated {
		pipe.Del(ctx, s.tokenKey(previous.VerificationToken))
	}
	if next.TokenPending() && next.VerificationToken != previous.VerificationToken {
		pipe.Set(ctx, s.tokenKey(next.VerificationToken), next.AccountID, time.Until(next.VerificationTokenExpiry))
	}
}
