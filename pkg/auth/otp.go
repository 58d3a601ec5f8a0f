package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// OTPLength is the number of digits in a one-time password.
const OTPLength = 6

// OTPValidity is how long an issued one-time password stays usable.
const OTPValidity = 10 * time.Minute

var (
	ErrOTPExpired  = errors.New("OTP has expired")
	ErrOTPMismatch = errors.New("Invalid OTP")
)

// NewOTP generates a numeric code and its bcrypt hash.
func NewOTP() (code string, hash string, err error) {
	code, err = generateNumericCode(OTPLength)
	if err != nil {
		return "", "", fmt.Errorf("generate otp code: %w", err)
	}
	raw, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hash otp code: %w", err)
	}
	return code, string(raw), nil
}

// VerifyOTP checks code against a hash issued at generatedAt.
// A zero generatedAt means the OTP was already consumed.
func VerifyOTP(code, hash string, generatedAt, now time.Time) error {
	if hash == "" || generatedAt.IsZero() || now.Sub(generatedAt) > OTPValidity {
		return ErrOTPExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return ErrOTPMismatch
	}
	return nil
}

func generateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid code length")
	}
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
