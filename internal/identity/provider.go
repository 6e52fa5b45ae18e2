// Package identity implementa el proveedor de identidad email/password:
// un Directory compartido con las credenciales y un Client por sesion que
// mantiene la identidad autenticada y notifica sus cambios.
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrEmailAlreadyInUse   = errors.New("email already in use")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrWeakPassword        = errors.New("password is required")
	ErrNotSignedIn         = errors.New("not signed in")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrOTPNotRequested     = errors.New("verification code not requested")
	ErrOTPExpired          = errors.New("verification code expired")
	ErrOTPInvalid          = errors.New("verification code invalid")
	ErrOTPAttemptsExceeded = errors.New("too many invalid verification codes")
	ErrEmailSendFailure    = errors.New("email send failed")
	ErrRateLimited         = errors.New("rate limited")
)

// Identity es la cuenta autenticada tal como la ve el cliente.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// AuthState es un evento del stream de autenticacion; Identity nil significa sesion cerrada.
type AuthState struct {
	Identity *Identity
}

func (s AuthState) SignedIn() bool {
	return s.Identity != nil
}

// Listener recibe los cambios de estado de autenticacion. No debe llamar de vuelta al proveedor.
type Listener func(AuthState)

// Provider es la capacidad de identidad que consume el session store.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	// Reload refresca la identidad actual (por ejemplo el flag de verificacion).
	Reload(ctx context.Context) (Identity, error)
	// Resume restaura la identidad recordada por el cliente tras una recarga.
	Resume(ctx context.Context, id string) error
	DeleteAccount(ctx context.Context, id string) error
	// Subscribe entrega el estado actual de inmediato y luego cada cambio.
	Subscribe(l Listener) (unsubscribe func())
}
