// Package token generates the opaque, single-use tokens used for email
// verification and password reset.
//
// A token is 32 bytes from a cryptographically secure source, base64url
// encoded: it is a lookup key, not a self-describing structure. The account
// it belongs to and its expiry live alongside it in the account record, so
// forging a token means guessing 256 random bits, not breaking a signature.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

const tokenRawSize = 32

// Issuer mints tokens and owns the expiry comparison rule. It is stateless
// and safe for concurrent use.
type Issuer struct {
	now func() time.Time
}

// NewIssuer returns an Issuer using the wall clock.
func NewIssuer() *Issuer {
	return &Issuer{now: time.Now}
}

// NewIssuerAt returns an Issuer with an injected clock, for tests.
func NewIssuerAt(now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{now: now}
}

// Issue returns a fresh token and its absolute expiry instant, now+validity.
// Collisions between two issued tokens are treated as negligible and not
// handled.
func (i *Issuer) Issue(validity time.Duration) (string, time.Time, error) {
	var raw [tokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", time.Time{}, err
	}

	// base64url, no padding: safe in a query string without percent-encoding.
	return base64.RawURLEncoding.EncodeToString(raw[:]), i.now().Add(validity), nil
}

// IsExpired reports whether a token with the given expiry is no longer
// redeemable at now. The boundary instant belongs to "expired": a token
// presented exactly at expiresAt is rejected.
func (i *Issuer) IsExpired(expiresAt, now time.Time) bool {
	return !now.Before(expiresAt)
}
