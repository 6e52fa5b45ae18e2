package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"anwesha-auth/internal/domain"
)

// MemoryCredentialRepository es un CredentialRepository en memoria para desarrollo y tests.
type MemoryCredentialRepository struct {
	mu      sync.Mutex
	byID    map[string]domain.Credential
	byEmail map[string]string
}

func NewMemoryCredentialRepository() *MemoryCredentialRepository {
	return &MemoryCredentialRepository{
		byID:    make(map[string]domain.Credential),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryCredentialRepository) Create(_ context.Context, cred domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[cred.Email]; ok {
		return ErrDuplicateKey
	}
	r.byID[cred.ID] = cred
	r.byEmail[cred.Email] = cred.ID
	return nil
}

func (r *MemoryCredentialRepository) GetByID(_ context.Context, id string) (domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return domain.Credential{}, pgx.ErrNoRows
	}
	return cred, nil
}

func (r *MemoryCredentialRepository) GetByEmail(ctx context.Context, email string) (domain.Credential, error) {
	r.mu.Lock()
	id, ok := r.byEmail[email]
	r.mu.Unlock()
	if !ok {
		return domain.Credential{}, pgx.ErrNoRows
	}
	return r.GetByID(ctx, id)
}

func (r *MemoryCredentialRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cred, ok := r.byID[id]; ok {
		delete(r.byEmail, cred.Email)
		delete(r.byID, id)
	}
	return nil
}

func (r *MemoryCredentialRepository) UpdateOTP(_ context.Context, id, otpHash string, otpExpiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	cred.OtpCodeHash = otpHash
	cred.OtpExpiresAt = &otpExpiresAt
	r.byID[id] = cred
	return nil
}

func (r *MemoryCredentialRepository) VerifyEmail(_ context.Context, id string, verifiedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return pgx.ErrNoRows
	}
	cred.EmailVerifiedAt = &verifiedAt
	cred.OtpCodeHash = ""
	cred.OtpExpiresAt = nil
	r.byID[id] = cred
	return nil
}
