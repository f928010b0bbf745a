// Package password provides one-way hashing for account passwords and
// security-question answers.
//
// Hashing uses bcrypt: the work factor and a per-call random salt are
// embedded in the output, so two hashes of the same secret never match and
// verification needs no stored parameters. Hash failures are hard errors;
// verification failures are a plain false. The two must never be conflated.
package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinCost and MaxCost bound the accepted bcrypt work factor.
	MinCost = bcrypt.MinCost
	MaxCost = 31
)

// Config holds the bcrypt work factor.
type Config struct {
	Cost int
}

// Bcrypt hashes and verifies secrets. It is stateless and safe for
// concurrent use.
type Bcrypt struct {
	cost int
}

// New validates cfg and returns a hasher.
func New(cfg Config) (*Bcrypt, error) {
	if cfg.Cost < MinCost || cfg.Cost > MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	return &Bcrypt{cost: cfg.Cost}, nil
}

// Hash produces a self-salting hash of secret. The output differs on every
// call for the same input; that is required, not a defect. An empty secret
// or a bcrypt failure is a hard error, distinct from a verification
// mismatch.
func (b *Bcrypt) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("empty secret")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash. A malformed hash yields false,
// never an error: the caller cannot act differently on "wrong password" and
// "unreadable hash" without leaking which one happened.
func (b *Bcrypt) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// HashAnswer hashes a security-question answer. Answers are normalized
// (trimmed, lowercased) so capitalization and stray whitespace do not lock
// the user out; [VerifyAnswer] applies the same normalization.
func (b *Bcrypt) HashAnswer(answer string) (string, error) {
	return b.Hash(NormalizeAnswer(answer))
}

// VerifyAnswer reports whether answer matches hash under answer
// normalization. Each answer is verified independently; a match on one
// reveals nothing about the others.
func (b *Bcrypt) VerifyAnswer(answer, hash string) bool {
	return b.Verify(NormalizeAnswer(answer), hash)
}

// NormalizeAnswer is the canonical form applied to security answers before
// hashing and before verification.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
