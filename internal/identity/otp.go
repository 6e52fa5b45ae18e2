package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode"
)

const (
	otpTTL         = 10 * time.Minute
	maxOTPAttempts = 5
)

// generateOTP devuelve el codigo en claro, su hash salado ("salt:hash") y el vencimiento.
func generateOTP(now time.Time) (string, string, time.Time, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", "", time.Time{}, err
	}
	code := fmt.Sprintf("%06d", n.Int64())

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", "", time.Time{}, err
	}
	saltStr := base64.StdEncoding.EncodeToString(salt)
	return code, saltStr + ":" + hashOTP(saltStr, code), now.UTC().Add(otpTTL), nil
}

func hashOTP(salt, code string) string {
	sum := sha256.Sum256([]byte(salt + ":" + code))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func verifyOTP(code, stored string) bool {
	salt, expected, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hashOTP(salt, code)), []byte(expected)) == 1
}

func isValidOTPCode(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
