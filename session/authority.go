// Package session turns an authenticated identity into signed, self-expiring
// claims and re-derives the identity from a presented token.
//
// Claims are a projection of the account taken at issuance. They are never
// re-validated against the store on use: if an account's role changes, the
// old role rides the session until it is reissued or expires. Callers that
// cannot tolerate that window must reissue after role changes.
package session

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// minHMACSecretSize matches the HS256 hash width; anything shorter weakens
// the MAC below its design strength.
const minHMACSecretSize = 32

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with an Ed25519 key pair (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// Config defines a public type used by identity APIs.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable unless documented otherwise.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	TTL           time.Duration
	PersistentTTL time.Duration
	Leeway        time.Duration
}

// Claims is the signed session payload: who authenticated, as what role, and
// whether the session should outlive a single agent run.
type Claims struct {
	AccountID  string `json:"aid"`
	Username   string `json:"uname"`
	Role       string `json:"role"`
	Persistent bool   `json:"prs,omitempty"`
	jwt.RegisteredClaims
}

// RoleName returns the role captured when the session was issued. This is
// deliberately not a live lookup: a role change after issuance stays
// invisible until the session is reissued.
func (c *Claims) RoleName() string {
	return c.Role
}

// Authority issues and parses session claims. It performs no I/O and is safe
// for concurrent use.
type Authority struct {
	config Config
}

// NewAuthority validates key material and returns an Authority.
func NewAuthority(cfg Config) (*Authority, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid session TTL configuration")
	}
	if cfg.PersistentTTL < cfg.TTL {
		return nil, errors.New("persistent TTL must be >= session TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < minHMACSecretSize {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
	case MethodEd25519:
		if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
			return nil, err
		}
		if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return &Authority{config: cfg}, nil
}

// Issue constructs and signs session claims for an authenticated account.
// persistent selects PersistentTTL over TTL and is carried in the claims so
// the transport layer can choose cookie lifetime accordingly; nothing else
// in this package reads it.
func (a *Authority) Issue(accountID, username, role string, persistent bool) (string, *Claims, error) {
	if accountID == "" || username == "" {
		return "", nil, errors.New("incomplete identity for session issuance")
	}

	ttl := a.config.TTL
	if persistent {
		ttl = a.config.PersistentTTL
	}

	now := time.Now()
	claims := &Claims{
		AccountID:  accountID,
		Username:   username,
		Role:       role,
		Persistent: persistent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    a.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(a.getMethod(), claims)
	signKey, err := a.getSignKey()
	if err != nil {
		return "", nil, err
	}

	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Parse verifies the signature and registered claims of a presented session
// token and returns its claims.
func (a *Authority) Parse(tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{a.getMethod().Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(a.config.Leeway))
	}
	if a.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.getVerifyKey()
	})
	if err != nil {
		return nil, err
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.AccountID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

func (a *Authority) getMethod() jwt.SigningMethod {
	switch a.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (a *Authority) getSignKey() (interface{}, error) {
	switch a.config.SigningMethod {
	case MethodHS256:
		return a.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(a.config.PrivateKey)
	}
}

func (a *Authority) getVerifyKey() (interface{}, error) {
	switch a.config.SigningMethod {
	case MethodHS256:
		return a.config.PrivateKey, nil
	default:
		return parseEdPublicKey(a.config.PublicKey)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
