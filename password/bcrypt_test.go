package password

import "testing"

func newTestHasher(t *testing.T) *Bcrypt {
	t.Helper()

	b, err := New(Config{Cost: MinCost})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestHashVerifyRoundTrip(t *testing.T) {
	b := newTestHasher(t)

	hash, err := b.Hash("hunter2hunter2")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !b.Verify("hunter2hunter2", hash) {
		t.Fatal("correct secret must verify")
	}
	if b.Verify("hunter2hunter3", hash) {
		t.Fatal("wrong secret must not verify")
	}
}

func TestHashIsSelfSalting(t *testing.T) {
	b := newTestHasher(t)

	h1, err := b.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := b.Hash("same-secret")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h2 {
		t.Fatal("two hashes of the same secret must differ")
	}
	if !b.Verify("same-secret", h1) || !b.Verify("same-secret", h2) {
		t.Fatal("both hashes must still verify")
	}
}

func TestHashEmptySecretIsHardError(t *testing.T) {
	b := newTestHasher(t)

	if _, err := b.Hash(""); err == nil {
		t.Fatal("empty secret must be a hard error, not a hash")
	}
}

func TestVerifyMalformedHashIsFalseNotError(t *testing.T) {
	b := newTestHasher(t)

	if b.Verify("secret", "not-a-bcrypt-hash") {
		t.Fatal("malformed hash must verify false")
	}
	if b.Verify("secret", "") {
		t.Fatal("empty hash must verify false")
	}
}

func TestNewRejectsCostOutOfRange(t *testing.T) {
	if _, err := New(Config{Cost: MinCost - 1}); err == nil {
		t.Fatal("cost below minimum must be rejected")
	}
	if _, err := New(Config{Cost: MaxCost + 1}); err == nil {
		t.Fatal("cost above maximum must be rejected")
	}
}

func TestAnswerNormalization(t *testing.T) {
	b := newTestHasher(t)

	hash, err := b.HashAnswer("  Fluffy The Cat ")
	if err != nil {
		t.Fatalf("HashAnswer failed: %v", err)
	}
	if !b.VerifyAnswer("fluffy the cat", hash) {
		t.Fatal("normalized answer must verify")
	}
	if !b.VerifyAnswer("FLUFFY THE CAT", hash) {
		t.Fatal("case must not matter")
	}
	if b.VerifyAnswer("fluffy", hash) {
		t.Fatal("different answer must not verify")
	}
}
