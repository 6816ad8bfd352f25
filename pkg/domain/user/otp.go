package user

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// DefaultOTPLength is the number of digits in an issued OTP.
const DefaultOTPLength = 4

var otpDigits = []byte("123456789")

// GenerateOTP returns a numeric one time password of the given length drawn
// from 1-9, so it never carries a leading zero.
func GenerateOTP(length int) (string, error) {
	if length < 1 {
		return "", errors.New("otp length must be positive")
	}
	out := make([]byte, length)
	limit := big.NewInt(int64(len(otpDigits)))
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		out[i] = otpDigits[n.Int64()]
	}
	return string(out), nil
}
