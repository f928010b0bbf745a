package identity

import "errors"

var (
	// ErrEngineNotReady is returned when an Engine method is called before the
	// engine was fully assembled through [Builder.Build].
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is the single error for unknown username, wrong
	// password, and empty login input. The three cases are indistinguishable
	// on purpose.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountNotFound is the sentinel an [AccountStore] must return from
	// its Find methods when no record matches.
	ErrAccountNotFound = errors.New("account not found")
	// ErrUsernameTaken is returned by Register when the username is already in use.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken is returned by Register when the email is already in use.
	ErrEmailTaken = errors.New("email already taken")
	// ErrRegistrationInvalid is returned for malformed registration input
	// before any collaborator is touched.
	ErrRegistrationInvalid = errors.New("invalid registration request")
	// ErrRoleInvalid is returned when a role outside the closed set is requested.
	ErrRoleInvalid = errors.New("invalid account role")
	// ErrPasswordPolicy is returned when a password is shorter than the
	// configured minimum.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrTokenNotFound is returned when a verification or reset token matches
	// no account, including tokens already consumed or rotated away.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExpired is returned when a token is presented at or after its
	// expiry instant.
	ErrTokenExpired = errors.New("token expired")
	// ErrStoreUnavailable wraps AccountStore failures other than not-found so
	// callers can log detail while showing a generic message.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrMailUnavailable wraps EmailDispatcher failures.
	ErrMailUnavailable = errors.New("email dispatcher unavailable")
	// ErrSessionInvalid is returned when a presented session token fails
	// signature, expiry, or claim validation.
	ErrSessionInvalid = errors.New("invalid session token")
)
