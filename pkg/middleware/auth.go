// Package middleware holds Fiber middleware shared by the HTTP routes.
package middleware

import (
	"errors"
	"strings"

	"github.com/amirasaad/corebank/pkg/config"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
)

// JwtProtected rejects requests without a valid HS256 bearer token. The
// parsed *jwt.Token is stored under c.Locals("user").
func JwtProtected(cfg *config.Jwt) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey:   jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.Secret)},
		ErrorHandler: jwtError,
	})
}

func jwtError(c *fiber.Ctx, err error) error {
	c.Set(fiber.HeaderContentType, "application/problem+json")
	if errors.Is(err, jwtware.ErrJWTMissingOrMalformed) ||
		strings.EqualFold(err.Error(), jwtware.ErrJWTMissingOrMalformed.Error()) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"type":   "about:blank",
			"title":  "Bad Request",
			"status": fiber.StatusBadRequest,
			"detail": "Missing or malformed JWT",
		})
	}
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"type":   "about:blank",
		"title":  "Unauthorized",
		"status": fiber.StatusUnauthorized,
		"detail": "Invalid or expired JWT",
	})
}
