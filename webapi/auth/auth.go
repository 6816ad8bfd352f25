// Package auth exposes the login endpoint.
package auth

import (
	authsvc "github.com/amirasaad/corebank/pkg/service/auth"
	"github.com/amirasaad/corebank/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// Routes registers the login route.
func Routes(app *fiber.App, authSvc *authsvc.Service) {
	app.Post("/auth/login", Login(authSvc))
}

// Login returns a Fiber handler that exchanges credentials for a JWT.
// Unverified users cannot log in.
// @Summary Login
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} common.Response "Login successful"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Invalid credentials"
// @Failure 403 {object} common.ProblemDetails "Email not verified"
// @Router /auth/login [post]
func Login(authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[LoginRequest](c)
		if input == nil {
			return err // error response already written
		}
		token, _, err := authSvc.Login(c.UserContext(), input.Email, input.Password)
		if err != nil {
			log.Warnf("Login failed: %v", err)
			return common.ProblemDetailsJSON(c, "Login failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Login successful", LoginResponse{Token: token})
	}
}
