// Package identity provides the account, verification, and session core for
// the TableCritic restaurant-review platform: registration with hashed
// credentials and security answers, email-ownership verification tokens,
// login, signed session claims, and password reset.
//
// The package is a library, not a service. The host application supplies an
// [AccountStore] (its user database) and an [EmailDispatcher] (its mail
// transport) and drives every flow through [Engine] methods. Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// identity is the public surface. It exposes [Engine], [Builder], [Config],
// the collaborator interfaces, and value types. Hashing lives in password/,
// opaque token generation in token/, signed claims in session/, mail
// composition and SMTP transport in mail/, and a ready-made Redis-backed
// AccountStore in redistore/.
//
// # What this package must NOT do
//
//   - Gate login on verification state. Login reports Identity.Verified and
//     the caller decides whether an unverified account may proceed.
//   - Distinguish "unknown username" from "wrong password", or "no such
//     account" from "reset email sent". Both are enumeration guards.
//   - Treat session claims as a source of truth. Claims are a snapshot taken
//     at issuance; role changes only take effect on reissue.
package identity
