package domain

import "time"

// Credential es la cuenta del proveedor de identidad (email + password).
type Credential struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	OtpCodeHash     string     `json:"-"`
	OtpExpiresAt    *time.Time `json:"otp_expires_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Verified indica si el email de la cuenta fue confirmado.
func (c Credential) Verified() bool {
	return c.EmailVerifiedAt != nil
}
