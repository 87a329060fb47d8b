// ABOUTME: Operator accounts, login sessions, invites and passkey credentials
// ABOUTME: Supports username/password auth and WebAuthn passkeys for the console

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrOperatorNotFound is returned when an operator doesn't exist.
var ErrOperatorNotFound = errors.New("operator not found")

// ErrSessionNotFound is returned when a session doesn't exist or is expired.
var ErrSessionNotFound = errors.New("operator session not found")

// ErrInviteNotFound is returned when an invite doesn't exist.
var ErrInviteNotFound = errors.New("invite not found")

// ErrInviteUsed is returned when trying to use an already-used invite.
var ErrInviteUsed = errors.New("invite already used")

// ErrInviteExpired is returned when an invite has expired.
var ErrInviteExpired = errors.New("invite expired")

// ErrUsernameExists is returned when trying to create an operator with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// Operator is a person who can sign in to the console.
type Operator struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash, empty if passkey-only
	DisplayName  string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// OperatorSession is an authenticated console session.
type OperatorSession struct {
	ID         string
	OperatorID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Invite is a signup link for a new operator.
type Invite struct {
	ID        string
	CreatedBy string // operator ID, empty for the bootstrap invite
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string
}

// PasskeyCredential is a registered WebAuthn credential.
type PasskeyCredential struct {
	ID              string
	OperatorID      string
	Name            string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array
	SignCount       uint32
	CreatedAt       time.Time
}

// OperatorStore defines the persistence of operators and their credentials.
type OperatorStore interface {
	CreateOperator(ctx context.Context, op *Operator) error
	GetOperator(ctx context.Context, id string) (*Operator, error)
	GetOperatorByUsername(ctx context.Context, username string) (*Operator, error)
	UpdateOperatorPassword(ctx context.Context, id, passwordHash string) error
	TouchOperatorLogin(ctx context.Context, id string, at time.Time) error
	ListOperators(ctx context.Context) ([]*Operator, error)
	CountOperators(ctx context.Context) (int, error)

	CreateSession(ctx context.Context, session *OperatorSession) error
	GetSession(ctx context.Context, id string) (*OperatorSession, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	CreateInvite(ctx context.Context, invite *Invite) error
	GetInvite(ctx context.Context, id string) (*Invite, error)
	UseInvite(ctx context.Context, inviteID, operatorID string) error

	CreatePasskey(ctx context.Context, cred *PasskeyCredential) error
	GetPasskeysByOperator(ctx context.Context, operatorID string) ([]*PasskeyCredential, error)
	GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error)
	UpdatePasskeySignCount(ctx context.Context, id string, signCount uint32) error
	DeletePasskey(ctx context.Context, operatorID, id string) error
}

const operatorColumns = `id, username, password_hash, display_name, created_at, last_login_at`

func scanOperator(scanner interface{ Scan(dest ...any) error }) (*Operator, error) {
	var op Operator
	var passwordHash, lastLogin sql.NullString
	var createdAtStr string

	if err := scanner.Scan(&op.ID, &op.Username, &passwordHash, &op.DisplayName, &createdAtStr, &lastLogin); err != nil {
		return nil, err
	}

	op.PasswordHash = passwordHash.String
	var err error
	op.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastLogin.Valid {
		t, err := time.Parse(time.RFC3339, lastLogin.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_login_at: %w", err)
		}
		op.LastLoginAt = &t
	}
	return &op, nil
}

// CreateOperator creates a new operator.
func (s *SQLiteStore) CreateOperator(ctx context.Context, op *Operator) error {
	query := `
		INSERT INTO operators (id, username, password_hash, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.Username,
		op.PasswordHash,
		op.DisplayName,
		op.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUsernameExists
		}
		return fmt.Errorf("inserting operator: %w", err)
	}

	s.logger.Info("created operator", "id", op.ID, "username", op.Username)
	return nil
}

// GetOperator retrieves an operator by ID.
func (s *SQLiteStore) GetOperator(ctx context.Context, id string) (*Operator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE id = ?`, id)
	op, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying operator: %w", err)
	}
	return op, nil
}

// GetOperatorByUsername retrieves an operator by username.
func (s *SQLiteStore) GetOperatorByUsername(ctx context.Context, username string) (*Operator, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+operatorColumns+` FROM operators WHERE username = ?`, username)
	op, err := scanOperator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOperatorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying operator by username: %w", err)
	}
	return op, nil
}

// UpdateOperatorPassword updates an operator's password hash.
func (s *SQLiteStore) UpdateOperatorPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE operators SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating operator password: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrOperatorNotFound
	}

	s.logger.Info("updated operator password", "id", id)
	return nil
}

// TouchOperatorLogin records a successful login.
func (s *SQLiteStore) TouchOperatorLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET last_login_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("recording operator login: %w", err)
	}
	return nil
}

// ListOperators returns all operators, oldest first.
func (s *SQLiteStore) ListOperators(ctx context.Context) ([]*Operator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying operators: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ops []*Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning operator: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating operators: %w", err)
	}
	return ops, nil
}

// CountOperators returns the number of operators.
func (s *SQLiteStore) CountOperators(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM operators").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting operators: %w", err)
	}
	return count, nil
}

// CreateSession creates a new operator session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *OperatorSession) error {
	query := `
		INSERT INTO operator_sessions (id, operator_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.OperatorID,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting operator session: %w", err)
	}

	s.logger.Debug("created operator session", "operator_id", session.OperatorID)
	return nil
}

// GetSession retrieves a valid (non-expired) session.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*OperatorSession, error) {
	query := `
		SELECT id, operator_id, created_at, expires_at
		FROM operator_sessions
		WHERE id = ? AND expires_at > ?
	`

	var session OperatorSession
	var createdAtStr, expiresAtStr string
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.db.QueryRowContext(ctx, query, id, now).Scan(
		&session.ID,
		&session.OperatorID,
		&createdAtStr,
		&expiresAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying operator session: %w", err)
	}

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}

	return &session, nil
}

// DeleteSession deletes a session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM operator_sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting operator session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all expired sessions and reports how many.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := s.db.ExecContext(ctx, "DELETE FROM operator_sessions WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired sessions: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired operator sessions", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// CreateInvite creates a new invite.
func (s *SQLiteStore) CreateInvite(ctx context.Context, invite *Invite) error {
	query := `
		INSERT INTO operator_invites (id, created_by, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`

	var createdBy sql.NullString
	if invite.CreatedBy != "" {
		createdBy = sql.NullString{String: invite.CreatedBy, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		invite.ID,
		createdBy,
		invite.CreatedAt.UTC().Format(time.RFC3339),
		invite.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting invite: %w", err)
	}

	s.logger.Info("created invite", "expires_at", invite.ExpiresAt)
	return nil
}

// GetInvite retrieves an invite by ID.
func (s *SQLiteStore) GetInvite(ctx context.Context, id string) (*Invite, error) {
	query := `
		SELECT id, created_by, created_at, expires_at, used_at, used_by
		FROM operator_invites
		WHERE id = ?
	`

	var invite Invite
	var createdBy, usedBy, usedAtStr sql.NullString
	var createdAtStr, expiresAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&invite.ID,
		&createdBy,
		&createdAtStr,
		&expiresAtStr,
		&usedAtStr,
		&usedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying invite: %w", err)
	}

	invite.CreatedBy = createdBy.String
	invite.UsedBy = usedBy.String

	invite.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	invite.ExpiresAt, err = time.Parse(time.RFC3339, expiresAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing expires_at: %w", err)
	}
	if usedAtStr.Valid {
		usedAt, err := time.Parse(time.RFC3339, usedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing used_at: %w", err)
		}
		invite.UsedAt = &usedAt
	}

	return &invite, nil
}

// UseInvite atomically marks an invite as used. Returns ErrInviteUsed if
// already used, ErrInviteExpired if expired, or ErrInviteNotFound.
func (s *SQLiteStore) UseInvite(ctx context.Context, inviteID, operatorID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	// Only succeeds if the invite exists, is unused and not expired.
	query := `
		UPDATE operator_invites
		SET used_at = ?, used_by = ?
		WHERE id = ?
		  AND used_at IS NULL
		  AND expires_at > ?
	`

	result, err := s.db.ExecContext(ctx, query, now, operatorID, inviteID, now)
	if err != nil {
		return fmt.Errorf("marking invite as used: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected > 0 {
		s.logger.Info("invite used", "operator_id", operatorID)
		return nil
	}

	invite, err := s.GetInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if invite.UsedAt != nil {
		return ErrInviteUsed
	}
	if time.Now().After(invite.ExpiresAt) {
		return ErrInviteExpired
	}
	return ErrInviteNotFound
}

const passkeyColumns = `id, operator_id, name, credential_id, public_key, attestation_type, transports, sign_count, created_at`

func scanPasskey(scanner interface{ Scan(dest ...any) error }) (*PasskeyCredential, error) {
	var cred PasskeyCredential
	var createdAtStr string
	var attestation, transports sql.NullString

	if err := scanner.Scan(
		&cred.ID,
		&cred.OperatorID,
		&cred.Name,
		&cred.CredentialID,
		&cred.PublicKey,
		&attestation,
		&transports,
		&cred.SignCount,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	cred.AttestationType = attestation.String
	cred.Transports = transports.String
	var err error
	cred.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &cred, nil
}

// CreatePasskey stores a new passkey credential.
func (s *SQLiteStore) CreatePasskey(ctx context.Context, cred *PasskeyCredential) error {
	query := `
		INSERT INTO passkey_credentials (id, operator_id, name, credential_id, public_key, attestation_type, transports, sign_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.OperatorID,
		cred.Name,
		cred.CredentialID,
		cred.PublicKey,
		cred.AttestationType,
		cred.Transports,
		cred.SignCount,
		cred.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting passkey credential: %w", err)
	}

	s.logger.Info("created passkey credential", "id", cred.ID, "operator_id", cred.OperatorID)
	return nil
}

// GetPasskeysByOperator retrieves all passkeys for an operator.
func (s *SQLiteStore) GetPasskeysByOperator(ctx context.Context, operatorID string) ([]*PasskeyCredential, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+passkeyColumns+` FROM passkey_credentials WHERE operator_id = ? ORDER BY created_at ASC`,
		operatorID)
	if err != nil {
		return nil, fmt.Errorf("querying passkey credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*PasskeyCredential
	for rows.Next() {
		cred, err := scanPasskey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning passkey credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating passkey credentials: %w", err)
	}
	return creds, nil
}

// GetPasskeyByCredentialID retrieves a passkey by its WebAuthn credential ID.
func (s *SQLiteStore) GetPasskeyByCredentialID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+passkeyColumns+` FROM passkey_credentials WHERE credential_id = ?`, credentialID)
	cred, err := scanPasskey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying passkey credential: %w", err)
	}
	return cred, nil
}

// UpdatePasskeySignCount updates the sign count for a credential.
func (s *SQLiteStore) UpdatePasskeySignCount(ctx context.Context, id string, signCount uint32) error {
	result, err := s.db.ExecContext(ctx, `UPDATE passkey_credentials SET sign_count = ? WHERE id = ?`, signCount, id)
	if err != nil {
		return fmt.Errorf("updating passkey sign count: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePasskey deletes one of the operator's passkeys.
func (s *SQLiteStore) DeletePasskey(ctx context.Context, operatorID, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM passkey_credentials WHERE id = ? AND operator_id = ?", id, operatorID)
	if err != nil {
		return fmt.Errorf("deleting passkey credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("deleted passkey credential", "id", id)
	return nil
}

// isUniqueConstraintError checks if an error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	// SQLite returns "UNIQUE constraint failed" in the error message
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") || strings.Contains(err.Error(), "unique constraint"))
}
