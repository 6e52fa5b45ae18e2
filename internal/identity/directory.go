package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"anwesha-auth/internal/domain"
	"anwesha-auth/internal/email"
	"anwesha-auth/internal/repository"
)

// Directory es el backend compartido del proveedor: guarda credenciales,
// valida passwords y gestiona la verificacion de email.
type Directory struct {
	logger      *zap.Logger
	creds       repository.CredentialRepository
	emailSender email.Sender
	otpLimiter  OTPRateLimiter
	now         func() time.Time

	// intentos fallidos por codigo emitido, indexados por su hash
	attemptsMu sync.Mutex
	attempts   map[string]int
}

func NewDirectory(logger *zap.Logger, creds repository.CredentialRepository, emailSender email.Sender, otpLimiter OTPRateLimiter) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	if otpLimiter == nil {
		otpLimiter = NewOTPRateLimiter(otpTTL, 3)
	}
	return &Directory{
		logger:      logger,
		creds:       creds,
		emailSender: emailSender,
		otpLimiter:  otpLimiter,
		now:         func() time.Time { return time.Now().UTC() },
		attempts:    make(map[string]int),
	}
}

// NewClient crea el estado de autenticacion de una sesion de cliente.
func (d *Directory) NewClient() *Client {
	return &Client{
		dir:       d,
		listeners: make(map[int]Listener),
	}
}

func (d *Directory) CreateAccount(ctx context.Context, emailAddr, password string) (domain.Credential, error) {
	emailAddr = normalizeEmail(emailAddr)
	if !looksLikeEmail(emailAddr) {
		return domain.Credential{}, ErrInvalidEmail
	}
	if password == "" {
		return domain.Credential{}, ErrWeakPassword
	}

	if _, err := d.creds.GetByEmail(ctx, emailAddr); err == nil {
		return domain.Credential{}, ErrEmailAlreadyInUse
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Credential{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Credential{}, err
	}
	cred := domain.Credential{
		ID:           uuid.NewString(),
		Email:        emailAddr,
		PasswordHash: string(hash),
		CreatedAt:    d.now(),
	}
	if err := d.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return domain.Credential{}, ErrEmailAlreadyInUse
		}
		return domain.Credential{}, err
	}
	return cred, nil
}

func (d *Directory) Authenticate(ctx context.Context, emailAddr, password string) (domain.Credential, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.Credential{}, ErrInvalidCredentials
	}
	cred, err := d.creds.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, ErrInvalidCredentials
		}
		return domain.Credential{}, err
	}
	if cred.PasswordHash == "" {
		return domain.Credential{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return domain.Credential{}, ErrInvalidCredentials
	}
	return cred, nil
}

func (d *Directory) Lookup(ctx context.Context, id string) (domain.Credential, error) {
	cred, err := d.creds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credential{}, ErrAccountNotFound
		}
		return domain.Credential{}, err
	}
	return cred, nil
}

func (d *Directory) DeleteAccount(ctx context.Context, id string) error {
	return d.creds.Delete(ctx, id)
}

// RequestVerification envia un codigo de 6 digitos al email de la cuenta.
func (d *Directory) RequestVerification(ctx context.Context, id string) (time.Time, error) {
	cred, err := d.Lookup(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	if cred.Verified() {
		return time.Time{}, ErrAlreadyVerified
	}
	if d.otpLimiter != nil && !d.otpLimiter.Allow(cred.Email) {
		return time.Time{}, ErrRateLimited
	}

	code, hash, expiresAt, err := generateOTP(d.now())
	if err != nil {
		return time.Time{}, err
	}
	if err := d.creds.UpdateOTP(ctx, cred.ID, hash, expiresAt); err != nil {
		return time.Time{}, err
	}

	if d.emailSender == nil {
		return time.Time{}, ErrEmailSendFailure
	}
	if err := d.emailSender.SendVerificationCode(ctx, cred.Email, code, expiresAt); err != nil {
		d.logger.Warn("send verification code failed", zap.Error(err), zap.String("email", cred.Email))
		return time.Time{}, ErrEmailSendFailure
	}
	return expiresAt, nil
}

// ConfirmVerification marca el email como verificado si el codigo es valido.
func (d *Directory) ConfirmVerification(ctx context.Context, id, code string) (domain.Credential, error) {
	code = strings.TrimSpace(code)
	if !isValidOTPCode(code) {
		return domain.Credential{}, ErrOTPInvalid
	}
	cred, err := d.Lookup(ctx, id)
	if err != nil {
		return domain.Credential{}, err
	}
	if cred.Verified() {
		return cred, nil
	}
	if cred.OtpCodeHash == "" || cred.OtpExpiresAt == nil {
		return domain.Credential{}, ErrOTPNotRequested
	}
	if d.now().After(*cred.OtpExpiresAt) {
		return domain.Credential{}, ErrOTPExpired
	}
	if !verifyOTP(code, cred.OtpCodeHash) {
		if d.recordFailedAttempt(cred.OtpCodeHash) < maxOTPAttempts {
			return domain.Credential{}, ErrOTPInvalid
		}
		// el hash vacio deja la cuenta como si nunca hubiera pedido codigo
		if err := d.creds.UpdateOTP(ctx, cred.ID, "", d.now()); err != nil {
			return domain.Credential{}, err
		}
		d.forgetAttempts(cred.OtpCodeHash)
		d.logger.Warn("verification code locked after failed attempts", zap.String("credential_id", cred.ID))
		return domain.Credential{}, ErrOTPAttemptsExceeded
	}
	d.forgetAttempts(cred.OtpCodeHash)

	verifiedAt := d.now()
	if err := d.creds.VerifyEmail(ctx, cred.ID, verifiedAt); err != nil {
		return domain.Credential{}, err
	}
	cred.EmailVerifiedAt = &verifiedAt
	cred.OtpCodeHash = ""
	cred.OtpExpiresAt = nil
	return cred, nil
}

func (d *Directory) recordFailedAttempt(otpHash string) int {
	d.attemptsMu.Lock()
	defer d.attemptsMu.Unlock()
	d.attempts[otpHash]++
	return d.attempts[otpHash]
}

func (d *Directory) forgetAttempts(otpHash string) {
	d.attemptsMu.Lock()
	defer d.attemptsMu.Unlock()
	delete(d.attempts, otpHash)
}

func toIdentity(cred domain.Credential) Identity {
	return Identity{ID: cred.ID, Email: cred.Email, Verified: cred.Verified()}
}

func normalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}

func looksLikeEmail(emailAddr string) bool {
	local, domainPart, ok := strings.Cut(emailAddr, "@")
	return ok && local != "" && strings.Contains(domainPart, ".") && !strings.ContainsAny(emailAddr, " \t")
}
