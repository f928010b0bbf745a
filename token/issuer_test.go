package token

import (
	"strings"
	"testing"
	"time"
)

func TestIssueProducesURLSafeUniqueTokens(t *testing.T) {
	issuer := NewIssuer()

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, _, err := issuer.Issue(time.Hour)
		if err != nil {
			t.Fatalf("Issue failed: %v", err)
		}
		if seen[tok] {
			t.Fatal("token collision")
		}
		seen[tok] = true

		// 32 raw bytes, base64url without padding.
		if len(tok) != 43 {
			t.Fatalf("unexpected token length %d", len(tok))
		}
		if strings.ContainsAny(tok, "+/=?&%") {
			t.Fatalf("token not URL-safe: %q", tok)
		}
	}
}

func TestIssueComputesExpiryFromValidity(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuerAt(func() time.Time { return base })

	_, expiresAt, err := issuer.Issue(24 * time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if !expiresAt.Equal(base.Add(24 * time.Hour)) {
		t.Fatalf("expiry %v, want %v", expiresAt, base.Add(24*time.Hour))
	}
}

func TestIsExpiredBoundaryBelongsToExpired(t *testing.T) {
	issuer := NewIssuer()
	expiresAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if issuer.IsExpired(expiresAt, expiresAt.Add(-time.Nanosecond)) {
		t.Fatal("strictly before expiry must not be expired")
	}
	if !issuer.IsExpired(expiresAt, expiresAt) {
		t.Fatal("exactly at expiry must be expired")
	}
	if !issuer.IsExpired(expiresAt, expiresAt.Add(time.Nanosecond)) {
		t.Fatal("after expiry must be expired")
	}
}
