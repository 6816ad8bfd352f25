package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain/user"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Authenticator checks credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
}

// Service issues and reads JWT access tokens.
type Service struct {
	users  Authenticator
	cfg    *config.Jwt
	logger *slog.Logger
	now    func() time.Time
}

func New(users Authenticator, cfg *config.Jwt, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		cfg:    cfg,
		logger: logger.With("service", "auth"),
		now:    time.Now,
	}
}

// Login authenticates the user and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	log := s.logger.With("context", "Login")
	u, err := s.users.Authenticate(ctx, email, password)
	if err != nil {
		log.Warn("Login failed", "error", err)
		return "", nil, err
	}
	token, err := s.GenerateToken(u)
	if err != nil {
		return "", nil, err
	}
	log.Info("Login successful", "user_id", u.ID)
	return token, u, nil
}

func (s *Service) GenerateToken(u *user.User) (string, error) {
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["email"] = u.Email
	claims["name"] = u.FullName
	claims["user_id"] = u.ID.String()
	claims["exp"] = s.now().Add(s.cfg.Expiry).Unix()
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		s.logger.Error("GenerateToken failed", "user_id", u.ID, "error", err)
		return "", err
	}
	return signed, nil
}

// CurrentUserID extracts the user id from a token already validated by the
// HTTP middleware.
func (s *Service) CurrentUserID(token *jwt.Token) (uuid.UUID, error) {
	if token == nil {
		return uuid.Nil, user.ErrUserUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, user.ErrUserUnauthorized
	}
	raw, ok := claims["user_id"].(string)
	if !ok {
		return uuid.Nil, user.ErrUserUnauthorized
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", user.ErrUserUnauthorized, err.Error())
	}
	return id, nil
}

// ParseToken validates a signed token and returns the user id it carries.
func (s *Service) ParseToken(signed string) (uuid.UUID, error) {
	token, err := jwt.Parse(signed, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", user.ErrUserUnauthorized, err.Error())
	}
	return s.CurrentUserID(token)
}
