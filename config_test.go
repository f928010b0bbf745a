package identity

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("test config must validate, got %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"cost too low", func(c *Config) { c.Password.Cost = 3 }, "cost"},
		{"cost too high", func(c *Config) { c.Password.Cost = 32 }, "cost"},
		{"zero min length", func(c *Config) { c.Password.MinLength = 0 }, "minimum length"},
		{"zero verification ttl", func(c *Config) { c.Verification.TokenTTL = 0 }, "verification token"},
		{"zero reset ttl", func(c *Config) { c.Reset.TokenTTL = 0 }, "reset token"},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }, "session TTL"},
		{"persistent below session", func(c *Config) { c.Session.PersistentTTL = c.Session.TTL / 2 }, "persistent"},
		{"missing base url", func(c *Config) { c.Mail.BaseURL = "" }, "base URL"},
		{"trailing slash", func(c *Config) { c.Mail.BaseURL = "https://x.example/" }, "slash"},
		{"missing paths", func(c *Config) { c.Mail.ResetPath = "" }, "paths"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestBuilderRequiresCollaborators(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without account store")
	}
	if _, err := New().WithConfig(testConfig()).WithAccountStore(newMockAccountStore()).Build(); err == nil {
		t.Fatal("expected error without email dispatcher")
	}
}

func TestBuilderIsSingleUse(t *testing.T) {
	b := New().
		WithConfig(testConfig()).
		WithAccountStore(newMockAccountStore()).
		WithEmailDispatcher(&recordingDispatcher{})

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := b.Build(); err == nil {
		t.Fatal("second Build must fail")
	}
}

func TestConfigCloneIsolatesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	cloned := cloneConfig(cfg)

	cfg.Session.PrivateKey[0] ^= 0xFF
	if cloned.Session.PrivateKey[0] == cfg.Session.PrivateKey[0] {
		t.Fatal("clone must not share key backing arrays")
	}
}
