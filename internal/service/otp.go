package service

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const otpDigits = 6

var otpMax = big.NewInt(1000000)

// generateOtpCode produces a 6-digit numeric pickup code
func generateOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", fmt.Errorf("failed to generate pickup code: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// otpMatches compares codes in constant time
func otpMatches(stored, supplied string) bool {
	if stored == "" || len(stored) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
