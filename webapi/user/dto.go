package user

import (
	"time"

	"github.com/amirasaad/corebank/pkg/domain/user"
	accountweb "github.com/amirasaad/corebank/webapi/account"
)

//revive:disable

// RegisterRequest represents the request body for signing up.
type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// VerifyRequest represents the request body for confirming an email with its OTP.
type VerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric,min=4,max=8"`
}

// ResendRequest represents the request body for issuing a fresh OTP.
type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// SetPinRequest represents the request body for setting the transaction PIN.
type SetPinRequest struct {
	Pin string `json:"pin" validate:"required,len=4,numeric"`
}

// UserDTO is the API response representation of a user.
type UserDTO struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Active    bool      `json:"active"`
	HasPin    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

// VerifiedDTO is returned once an email is verified.
type VerifiedDTO struct {
	User    UserDTO              `json:"user"`
	Account accountweb.OpenedDTO `json:"account"`
}

// ToUserDTO maps a domain user to its API shape. Secrets never leave the service.
func ToUserDTO(u *user.User) UserDTO {
	return UserDTO{
		ID:        u.ID.String(),
		FullName:  u.FullName,
		Email:     u.Email,
		Active:    u.Active,
		HasPin:    u.PinHash != "",
		CreatedAt: u.CreatedAt,
	}
}
