package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"attest/internal/registry/models"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
)

// PostgreSQL-backed stores. Schema lives in migrations/001_init.sql.

type PostgresIdentityStore struct {
	db *sql.DB
}

func NewPostgresIdentityStore(db *sql.DB) *PostgresIdentityStore {
	return &PostgresIdentityStore{db: db}
}

func (s *PostgresIdentityStore) Create(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (principal, name, email, profile_hash, reputation_score, verified, created_at, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.Principal.String(), identity.Name, identity.Email, identity.ProfileHash,
		identity.ReputationScore, identity.Verified, identity.CreatedAt, identity.LastUpdated,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("identity for %q already exists: %w", identity.Principal, sentinel.ErrConflict)
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresIdentityStore) FindByPrincipal(ctx context.Context, principal id.Principal) (*models.Identity, error) {
	query := `
		SELECT principal, name, email, profile_hash, reputation_score, verified, created_at, last_updated
		FROM identities
		WHERE principal = $1
	`
	var (
		identity     models.Identity
		principalCol string
	)
	err := s.db.QueryRowContext(ctx, query, principal.String()).Scan(
		&principalCol, &identity.Name, &identity.Email, &identity.ProfileHash,
		&identity.ReputationScore, &identity.Verified, &identity.CreatedAt, &identity.LastUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity for %q: %w", principal, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find identity: %w", err)
	}
	identity.Principal = id.Principal(principalCol)
	return &identity, nil
}

func (s *PostgresIdentityStore) Save(ctx context.Context, identity *models.Identity) error {
	query := `
		UPDATE identities
		SET name = $2, email = $3, profile_hash = $4, reputation_score = $5, verified = $6, last_updated = $7
		WHERE principal = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		identity.Principal.String(), identity.Name, identity.Email, identity.ProfileHash,
		identity.ReputationScore, identity.Verified, identity.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save identity rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("identity for %q: %w", identity.Principal, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresIdentityStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM identities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}

type PostgresCredentialStore struct {
	db *sql.DB
}

func NewPostgresCredentialStore(db *sql.DB) *PostgresCredentialStore {
	return &PostgresCredentialStore{db: db}
}

func (s *PostgresCredentialStore) Append(ctx context.Context, subject id.Principal, credential *models.Credential) (int, error) {
	// The index must equal the sequence length before the append; computing it
	// inside the INSERT keeps that atomic under the (subject, idx) primary key.
	query := `
		INSERT INTO credentials (subject, idx, credential_type, issuer, credential_hash, issued_at, expires_at, valid)
		SELECT $1, COALESCE(MAX(idx) + 1, 0), $2, $3, $4, $5, $6, $7
		FROM credentials WHERE subject = $1
		RETURNING idx
	`
	var index int
	err := s.db.QueryRowContext(ctx, query,
		subject.String(), credential.CredentialType, credential.Issuer, credential.CredentialHash,
		credential.IssuedAt, nullableTime(credential.ExpiresAt), credential.Valid,
	).Scan(&index)
	if err != nil {
		return 0, fmt.Errorf("append credential: %w", err)
	}
	return index, nil
}

func (s *PostgresCredentialStore) Find(ctx context.Context, subject id.Principal, index int) (*models.Credential, error) {
	query := `
		SELECT credential_type, issuer, credential_hash, issued_at, expires_at, valid
		FROM credentials
		WHERE subject = $1 AND idx = $2
	`
	credential, err := scanCredential(s.db.QueryRowContext(ctx, query, subject.String(), index))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %d of %q: %w", index, subject, sentinel.ErrOutOfRange)
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	return credential, nil
}

func (s *PostgresCredentialStore) Save(ctx context.Context, subject id.Principal, index int, credential *models.Credential) error {
	query := `
		UPDATE credentials
		SET credential_type = $3, issuer = $4, credential_hash = $5, expires_at = $6, valid = $7
		WHERE subject = $1 AND idx = $2
	`
	result, err := s.db.ExecContext(ctx, query,
		subject.String(), index, credential.CredentialType, credential.Issuer,
		credential.CredentialHash, nullableTime(credential.ExpiresAt), credential.Valid,
	)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save credential rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("credential %d of %q: %w", index, subject, sentinel.ErrOutOfRange)
	}
	return nil
}

func (s *PostgresCredentialStore) List(ctx context.Context, subject id.Principal) ([]models.Credential, error) {
	query := `
		SELECT credential_type, issuer, credential_hash, issued_at, expires_at, valid
		FROM credentials
		WHERE subject = $1
		ORDER BY idx
	`
	rows, err := s.db.QueryContext(ctx, query, subject.String())
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	credentials := []models.Credential{}
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		credentials = append(credentials, *credential)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return credentials, nil
}

func (s *PostgresCredentialStore) Count(ctx context.Context, subject id.Principal) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM credentials WHERE subject = $1`, subject.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count credentials: %w", err)
	}
	return count, nil
}

func (s *PostgresCredentialStore) CountAll(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM credentials`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count all credentials: %w", err)
	}
	return count, nil
}

type PostgresIssuerStore struct {
	db *sql.DB
}

func NewPostgresIssuerStore(db *sql.DB) *PostgresIssuerStore {
	return &PostgresIssuerStore{db: db}
}

func (s *PostgresIssuerStore) Add(ctx context.Context, principal id.Principal) error {
	query := `INSERT INTO trusted_issuers (principal) VALUES ($1) ON CONFLICT (principal) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, principal.String()); err != nil {
		return fmt.Errorf("add trusted issuer: %w", err)
	}
	return nil
}

func (s *PostgresIssuerStore) Remove(ctx context.Context, principal id.Principal) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trusted_issuers WHERE principal = $1`, principal.String()); err != nil {
		return fmt.Errorf("remove trusted issuer: %w", err)
	}
	return nil
}

func (s *PostgresIssuerStore) IsTrusted(ctx context.Context, principal id.Principal) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM trusted_issuers WHERE principal = $1)`, principal.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check trusted issuer: %w", err)
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		credential models.Credential
		expiresAt  sql.NullTime
	)
	err := row.Scan(&credential.CredentialType, &credential.Issuer, &credential.CredentialHash,
		&credential.IssuedAt, &expiresAt, &credential.Valid)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		credential.ExpiresAt = expiresAt.Time
	}
	return &credential, nil
}

// nullableTime maps the zero time (never expires) to SQL NULL.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
