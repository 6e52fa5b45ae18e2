package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"anwesha-auth/internal/domain"
)

// CredentialRepository define el contrato de persistencia para credenciales.
// Las busquedas sin resultado devuelven pgx.ErrNoRows.
type CredentialRepository interface {
	Create(ctx context.Context, cred domain.Credential) error
	GetByID(ctx context.Context, id string) (domain.Credential, error)
	GetByEmail(ctx context.Context, email string) (domain.Credential, error)
	Delete(ctx context.Context, id string) error
	UpdateOTP(ctx context.Context, id, otpHash string, otpExpiresAt time.Time) error
	VerifyEmail(ctx context.Context, id string, verifiedAt time.Time) error
}

// PgCredentialRepository implementa CredentialRepository usando pgxpool.
type PgCredentialRepository struct {
	pool *pgxpool.Pool
}

func NewPgCredentialRepository(pool *pgxpool.Pool) *PgCredentialRepository {
	return &PgCredentialRepository{pool: pool}
}

const credentialColumns = `id, email, password_hash, email_verified_at, otp_code_hash, otp_expires_at, created_at`

func (r *PgCredentialRepository) Create(ctx context.Context, cred domain.Credential) error {
	const query = `
		INSERT INTO credentials (id, email, password_hash, email_verified_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		cred.ID,
		cred.Email,
		cred.PasswordHash,
		cred.EmailVerifiedAt,
		cred.CreatedAt,
	)
	return translatePgError(err)
}

func (r *PgCredentialRepository) GetByID(ctx context.Context, id string) (domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = $1`
	return scanCredential(r.pool.QueryRow(ctx, query, id))
}

func (r *PgCredentialRepository) GetByEmail(ctx context.Context, email string) (domain.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE email = $1`
	return scanCredential(r.pool.QueryRow(ctx, query, email))
}

func (r *PgCredentialRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM credentials WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}

func (r *PgCredentialRepository) UpdateOTP(ctx context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	const query = `
		UPDATE credentials
		SET otp_code_hash = $2, otp_expires_at = $3
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, otpHash, otpExpiresAt)
	return err
}

func (r *PgCredentialRepository) VerifyEmail(ctx context.Context, id string, verifiedAt time.Time) error {
	const query = `
		UPDATE credentials
		SET email_verified_at = $2, otp_code_hash = '', otp_expires_at = NULL
		WHERE id = $1
	`
	_, err := r.pool.Exec(ctx, query, id, verifiedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.PasswordHash,
		&c.EmailVerifiedAt,
		&c.OtpCodeHash,
		&c.OtpExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		return domain.Credential{}, err
	}
	return c, nil
}
