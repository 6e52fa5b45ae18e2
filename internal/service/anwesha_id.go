package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const anweshaIDPrefix = "ANW-MUL-"

var anweshaIDPattern = regexp.MustCompile(`^ANW-MUL-[1-9][0-9]{5}$`)

// NewAnweshaID genera un codigo ANW-MUL-NNNNNN con NNNNNN uniforme en [100000, 999999].
// La unicidad la garantiza quien lo asigna.
func NewAnweshaID() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", anweshaIDPrefix, n.Int64()+100000), nil
}

// IsAnweshaID valida el formato de un codigo de registro.
func IsAnweshaID(s string) bool {
	return anweshaIDPattern.MatchString(s)
}
