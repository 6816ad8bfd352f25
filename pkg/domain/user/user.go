package user

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUserNotFound is returned when a user cannot be found in the
	// repository. It matches domain.ErrNotFound.
	ErrUserNotFound = fmt.Errorf("user %w", domain.ErrNotFound)
	// ErrUserUnauthorized is returned when credentials do not match.
	ErrUserUnauthorized = errors.New("user unauthorized")
	// ErrUserInactive is returned when an unverified user tries to act.
	ErrUserInactive = errors.New("user has not verified their email")
	// ErrInvalidPin is returned when a transaction PIN is missing, malformed or wrong.
	ErrInvalidPin = errors.New("invalid transaction pin")
	// ErrPinNotSet is returned when the user never configured a transaction PIN.
	ErrPinNotSet = errors.New("transaction pin not set")
	// ErrInvalidOTP is returned when a one time password does not match.
	ErrInvalidOTP = errors.New("invalid otp")
	// ErrOTPExpired is returned when a one time password is older than its TTL.
	ErrOTPExpired = errors.New("otp expired")
	// ErrAlreadyVerified is returned when verifying or resending for an active user.
	ErrAlreadyVerified = errors.New("user already verified")
)

// PinLength is the number of digits in a transaction PIN.
const PinLength = 4

const bcryptCost = bcrypt.DefaultCost

// User is an account owner.
type User struct {
	ID           uuid.UUID
	FullName     string
	Email        string
	PasswordHash string
	PinHash      string
	OTPHash      string
	OTPIssuedAt  time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates an inactive User with a hashed password.
func New(fullName, email, password string) (*User, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return nil, errors.New("full name cannot be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.New("invalid email address")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		FullName:     fullName,
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword compares a plain password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetPin stores a bcrypt hash of a four digit transaction PIN.
func (u *User) SetPin(pin string) error {
	if !validPin(pin) {
		return ErrInvalidPin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return err
	}
	u.PinHash = string(hash)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// CheckPin verifies a transaction PIN.
func (u *User) CheckPin(pin string) error {
	if u.PinHash == "" {
		return ErrPinNotSet
	}
	if !validPin(pin) {
		return ErrInvalidPin
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PinHash), []byte(pin)) != nil {
		return ErrInvalidPin
	}
	return nil
}

// IssueOTP stores a bcrypt hash of a fresh one time password on an inactive
// user. The plain code only travels to the user.
func (u *User) IssueOTP(otp string, now time.Time) error {
	if u.Active {
		return ErrAlreadyVerified
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(otp), bcryptCost)
	if err != nil {
		return err
	}
	u.OTPHash = string(hash)
	u.OTPIssuedAt = now
	u.UpdatedAt = now
	return nil
}

// VerifyOTP activates the user when otp matches and is not older than ttl.
// The OTP is consumed on success.
func (u *User) VerifyOTP(otp string, now time.Time, ttl time.Duration) error {
	if u.Active {
		return ErrAlreadyVerified
	}
	if u.OTPHash == "" || otp == "" {
		return ErrInvalidOTP
	}
	if bcrypt.CompareHashAndPassword([]byte(u.OTPHash), []byte(otp)) != nil {
		return ErrInvalidOTP
	}
	if now.Sub(u.OTPIssuedAt) > ttl {
		return ErrOTPExpired
	}
	u.Active = true
	u.OTPHash = ""
	u.UpdatedAt = now
	return nil
}

func validPin(pin string) bool {
	if len(pin) != PinLength {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
