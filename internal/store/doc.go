// Package store provides the console's local persistence on SQLite.
//
// The remote billing API owns all billing data. The store only keeps what
// the console itself needs:
//
//   - Operator: console accounts (bcrypt password and/or passkeys)
//   - OperatorSession: cookie-backed login sessions
//   - Invite: one-time signup links for new operators
//   - PasskeyCredential: WebAuthn credentials
//   - operator settings: the per-operator API session (base URL, token,
//     admin key, app ID) and configurable plan drafts
//   - AuditEntry: who changed what through the console
//
// SQLiteStore implements every interface in a single struct.
//
// The database runs in WAL mode with foreign keys on:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as RFC 3339 text. Sentinel errors (ErrNotFound,
// ErrOperatorNotFound, ErrSessionNotFound, ErrInvite*) are returned
// unwrapped so callers can compare with errors.Is.
package store
