// Package webapi provides the HTTP API of the bank core.
// It is organized into sub-packages for different domains:
// - account: Accounts, balances and statements
// - transfer: Money transfers
// - auth: Authentication endpoints
// - user: Onboarding and user settings
package webapi

import (
	"errors"
	"strings"

	"github.com/amirasaad/corebank/pkg/app"
	accountweb "github.com/amirasaad/corebank/webapi/account"
	authweb "github.com/amirasaad/corebank/webapi/auth"
	"github.com/amirasaad/corebank/webapi/common"
	transferweb "github.com/amirasaad/corebank/webapi/transfer"
	userweb "github.com/amirasaad/corebank/webapi/user"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// SetupApp Initialize Fiber with custom configuration
func SetupApp(app *app.App) *fiber.App {
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return common.ProblemDetailsJSON(c, "Internal Server Error", err)
		},
	})

	fiberApp.Use(limiter.New(limiter.Config{
		Max:          app.Config.RateLimit.MaxRequests,
		Expiration:   app.Config.RateLimit.Window,
		KeyGenerator: clientKey,
		LimitReached: func(c *fiber.Ctx) error {
			return common.ProblemDetailsJSON(
				c,
				"Too Many Requests",
				errors.New("rate limit exceeded"),
				fiber.StatusTooManyRequests,
			)
		},
	}))
	fiberApp.Use(recover.New())
	fiberApp.Use(requestid.New())
	fiberApp.Use(logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// Health check endpoint
	fiberApp.Get(
		"/",
		func(c *fiber.Ctx) error {
			return c.SendString("CoreBank API is running! 🚀")
		},
	)

	accountweb.Routes(fiberApp, app.AccountService, app.StatementService, app.AuthService, app.Config)
	transferweb.Routes(fiberApp, app.TransferEngine, app.Idempotency, app.UserService, app.AuthService, app.Config)
	userweb.Routes(fiberApp, app.UserService, app.AuthService, app.Config)
	authweb.Routes(fiberApp, app.AuthService)
	return fiberApp
}

// clientKey identifies the caller for rate limiting: the first hop of
// X-Forwarded-For behind a proxy, then X-Real-IP, then the peer address.
func clientKey(c *fiber.Ctx) string {
	if forwarded := c.Get(fiber.HeaderXForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.IP()
}
