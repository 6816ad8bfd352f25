// Package user provides onboarding and credential management for account
// holders: registration with an emailed OTP, verification (which opens the
// first account with the welcome bonus), the transaction PIN and password
// authentication.
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/repository"
	accountsvc "github.com/amirasaad/corebank/pkg/service/account"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailTaken is returned when registering an email that already has a user.
var ErrEmailTaken = fmt.Errorf("email already registered: %w", domain.ErrAlreadyExists)

const maxVerifyAttempts = 5

// Service provides business logic for user onboarding and credentials.
type Service struct {
	uow       repository.UnitOfWork
	accounts  *accountsvc.Service
	bus       eventbus.Bus
	otpTTL    time.Duration
	otpLength int
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service. accounts opens the first account on verification.
func New(
	uow repository.UnitOfWork,
	accounts *accountsvc.Service,
	bus eventbus.Bus,
	bank *config.Bank,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		uow:       uow,
		accounts:  accounts,
		bus:       bus,
		otpTTL:    bank.OTPTTL,
		otpLength: bank.OTPLength,
		logger:    logger.With("service", "user"),
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.otpLength <= 0 {
		s.otpLength = user.DefaultOTPLength
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an inactive user and issues an OTP. The OTP reaches the
// user through the OTPIssued event.
func (s *Service) Register(ctx context.Context, fullName, email, password string) (*user.User, error) {
	u, err := user.New(fullName, email, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}
	otp, err := s.issueOTP(u)
	if err != nil {
		return nil, err
	}

	err = s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		users, err := uow.UserRepository()
		if err != nil {
			return err
		}
		if _, err := users.GetByEmail(ctx, u.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, user.ErrUserNotFound) {
			return err
		}
		if err := users.Create(ctx, u); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "user_id", u.ID)
	s.publishOTP(ctx, u, otp)
	return u, nil
}

// Verify activates the user when otp matches and opens their first SAVINGS
// account with the welcome bonus, all in one unit of work. The user row is
// locked first, so concurrent submissions of one code verify at most once.
func (s *Service) Verify(ctx context.Context, email, otp string) (*user.User, *accountsvc.Opened, error) {
	var (
		verified *user.User
		opened   *accountsvc.Opened
	)
	err := repository.DoWithConflictRetry(ctx, s.uow, maxVerifyAttempts, func(uow repository.UnitOfWork) error {
		users, err := uow.UserRepository()
		if err != nil {
			return err
		}
		u, err := users.GetForUpdateByEmail(ctx, email)
		if err != nil {
			return err
		}
		if err := u.VerifyOTP(otp, s.now(), s.otpTTL); err != nil {
			return err
		}
		if err := users.Update(ctx, u); err != nil {
			return err
		}
		opened, err = s.accounts.Open(ctx, uow, s.accounts.WithWelcomeBonus(accountsvc.OpenRequest{
			OwnerID: u.ID,
			Type:    account.TypeSavings,
		}))
		if err != nil {
			return err
		}
		verified = u
		return nil
	})
	if err != nil {
		s.logger.Warn("verification failed", "error", err)
		return nil, nil, err
	}
	s.logger.Info("user verified", "user_id", verified.ID, "account", opened.Account.Number)
	s.accounts.Announce(ctx, opened)
	return verified, opened, nil
}

// Resend issues a fresh OTP to an unverified user.
func (s *Service) Resend(ctx context.Context, email string) error {
	var (
		u   *user.User
		otp string
	)
	err := s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		users, err := uow.UserRepository()
		if err != nil {
			return err
		}
		u, err = users.GetForUpdateByEmail(ctx, email)
		if err != nil {
			return err
		}
		if otp, err = s.issueOTP(u); err != nil {
			return err
		}
		return users.Update(ctx, u)
	})
	if err != nil {
		return err
	}
	s.publishOTP(ctx, u, otp)
	return nil
}

// SetPin sets or replaces the transaction PIN of an active user.
func (s *Service) SetPin(ctx context.Context, userID uuid.UUID, pin string) error {
	return s.uow.Do(ctx, func(uow repository.UnitOfWork) error {
		users, err := uow.UserRepository()
		if err != nil {
			return err
		}
		u, err := users.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !u.Active {
			return user.ErrUserInactive
		}
		if err := u.SetPin(pin); err != nil {
			return err
		}
		return users.Update(ctx, u)
	})
}

// VerifyPin checks the transaction PIN of an active user.
func (s *Service) VerifyPin(ctx context.Context, userID uuid.UUID, pin string) error {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !u.Active {
		return user.ErrUserInactive
	}
	if err := u.CheckPin(pin); err != nil {
		s.logger.Warn("transaction pin rejected", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// dummyHash keeps the cost of a failed lookup equal to a password check.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("corebank-dummy"), bcrypt.DefaultCost)

// Authenticate checks an email and password. Unknown emails and wrong
// passwords both fail with ErrUserUnauthorized.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*user.User, error) {
	users, err := s.uow.UserRepository()
	if err != nil {
		return nil, err
	}
	u, err := users.GetByEmail(ctx, email)
	if errors.Is(err, user.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, user.ErrUserUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !u.CheckPassword(password) {
		s.logger.Warn("login failed", "user_id", u.ID)
		return nil, user.ErrUserUnauthorized
	}
	if !u.Active {
		return nil, user.ErrUserInactive
	}
	return u, nil
}

// GetUser returns a user by id.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	users, err := s.uow.UserRepository()
	if err != nil {
		return nil, err
	}
	return users.Get(ctx, userID)
}

// issueOTP stores a hash of a fresh code on u and returns the code, which
// only ever leaves the process in the OTPIssued event.
func (s *Service) issueOTP(u *user.User) (string, error) {
	otp, err := user.GenerateOTP(s.otpLength)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	if err := u.IssueOTP(otp, s.now()); err != nil {
		return "", fmt.Errorf("issue otp: %w", err)
	}
	return otp, nil
}

func (s *Service) publishOTP(ctx context.Context, u *user.User, otp string) {
	if s.bus == nil {
		return
	}
	evt := &events.OTPIssued{
		ID:        uuid.New(),
		UserID:    u.ID,
		FullName:  u.FullName,
		Email:     u.Email,
		OTP:       otp,
		ExpiresAt: u.OTPIssuedAt.Add(s.otpTTL),
	}
	if err := s.bus.Emit(ctx, evt); err != nil {
		s.logger.Error("failed to publish otp", "user_id", u.ID, "error", err)
	}
}
