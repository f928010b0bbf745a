package identity

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

const testSessionSecret = "test-hs256-secret-material-0123456789"

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Cost = 4 // minimum bcrypt cost, tests only
	cfg.Session.SigningMethod = "hs256"
	cfg.Session.PrivateKey = []byte(testSessionSecret)
	cfg.Session.Issuer = "tablecritic-test"
	cfg.Mail.BaseURL = "https://tablecritic.example"
	return cfg
}

func newTestEngine(t *testing.T, store AccountStore, dispatcher EmailDispatcher) *Engine {
	t.Helper()

	engine, err := New().
		WithConfig(testConfig()).
		WithAccountStore(store).
		WithEmailDispatcher(dispatcher).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func testRegisterRequest(username, email string) RegisterRequest {
	return RegisterRequest{
		Username: username,
		Email:    email,
		Password: "correct-horse-battery",
		Role:     RoleReviewer,
		Questions: [3]SecurityQA{
			{Question: "First pet?", Answer: "Rex"},
			{Question: "Birth city?", Answer: "Lisbon"},
			{Question: "Favorite dish?", Answer: "Ramen"},
		},
	}
}

// mockAccountStore is an in-memory AccountStore with the same token index
// semantics the contract asks of real implementations: consumed tokens keep
// resolving, rotated-away tokens stop immediately.
type mockAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	tokens   map[string]string
	failWith error

	// afterFind, when set, runs once after the next FindByID or
	// FindByUsername returns, outside the store lock. Tests use it to slip
	// a competing write into another flow's read-to-write window.
	afterFind func()
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts: map[string]*Account{},
		tokens:   map[string]string{},
	}
}

func cloneAccount(a *Account) *Account {
	out := *a
	return &out
}

func (m *mockAccountStore) FindByID(ctx context.Context, accountID string) (*Account, error) {
	account, err := m.findByIDLocked(accountID)
	m.fireAfterFind()
	return account, err
}

func (m *mockAccountStore) findByIDLocked(accountID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (m *mockAccountStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	account, err := m.findByUsernameLocked(username)
	m.fireAfterFind()
	return account, err
}

func (m *mockAccountStore) findByUsernameLocked(username string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, account := range m.accounts {
		if account.Username == username {
			return cloneAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

// fireAfterFind invokes the afterFind hook at most once, clearing it first so
// finds issued from inside the hook do not recurse.
func (m *mockAccountStore) fireAfterFind() {
	m.mu.Lock()
	hook := m.afterFind
	m.afterFind = nil
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (m *mockAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, account := range m.accounts {
		if account.Email == email {
			return cloneAccount(account), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *mockAccountStore) FindByToken(ctx context.Context, token string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	accountID, ok := m.tokens[token]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (m *mockAccountStore) Insert(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, existing := range m.accounts {
		if existing.Username == account.Username {
			return ErrUsernameTaken
		}
	}
	for _, existing := range m.accounts {
		if existing.Email == account.Email {
			return ErrEmailTaken
		}
	}
	m.accounts[account.AccountID] = cloneAccount(account)
	if account.TokenPending() {
		m.tokens[account.VerificationToken] = account.AccountID
	}
	return nil
}

func (m *mockAccountStore) Update(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	previous, ok := m.accounts[account.AccountID]
	if !ok {
		return ErrAccountNotFound
	}
	m.applyLocked(previous, account)
	return nil
}

func (m *mockAccountStore) UpdateIfToken(ctx context.Context, account *Account, expectedToken string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return false, m.failWith
	}
	previous, ok := m.accounts[account.AccountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if previous.VerificationToken != expectedToken {
		return false, nil
	}
	m.applyLocked(previous, account)
	return true, nil
}

func (m *mockAccountStore) applyLocked(previous, next *Account) {
	rotated := previous.VerificationToken != "" &&
		next.TokenPending() &&
		next.VerificationToken != previous.VerificationToken
	if rotated {
		delete(m.tokens, previous.VerificationToken)
	}
	if next.TokenPending() {
		m.tokens[next.VerificationToken] = next.AccountID
	}
	m.accounts[next.AccountID] = cloneAccount(next)
}

// backdateToken rewrites an account's token expiry, for expiry tests.
func (m *mockAccountStore) backdateToken(accountID string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[accountID]; ok {
		account.VerificationTokenExpiry = expiresAt
	}
}

func (m *mockAccountStore) get(accountID string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[accountID]; ok {
		return cloneAccount(account)
	}
	return nil
}

type sentEmail struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string
}

type recordingDispatcher struct {
	mu    sync.Mutex
	sends []sentEmail
	fail  error
}

func (d *recordingDispatcher) Send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.sends = append(d.sends, sentEmail{To: to, Subject: subject, TextBody: textBody, HTMLBody: htmlBody})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sends)
}

func (d *recordingDispatcher) last() sentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sends) == 0 {
		return sentEmail{}
	}
	return d.sends[len(d.sends)-1]
}

// extractToken pulls the token query parameter out of an email text body.
func extractToken(t *testing.T, textBody string) string {
	t.Helper()

	idx := strings.Index(textBody, "token=")
	if idx < 0 {
		t.Fatalf("no token link in email body: %q", textBody)
	}
	rest := textBody[idx+len("token="):]
	if end := strings.IndexAny(rest, " \n\t"); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		t.Fatal("empty token in email body")
	}
	return rest
}
