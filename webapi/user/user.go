package user

import (
	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/middleware"
	authsvc "github.com/amirasaad/corebank/pkg/service/auth"
	usersvc "github.com/amirasaad/corebank/pkg/service/user"
	accountweb "github.com/amirasaad/corebank/webapi/account"
	"github.com/amirasaad/corebank/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
)

// Routes registers HTTP routes for onboarding and user settings.
//
// Routes:
//   - POST /users/register   : Create an unverified user and send an OTP.
//   - POST /users/verify     : Verify the email and open the first account.
//   - POST /users/resend-otp : Issue a fresh OTP.
//   - GET  /users/me         : The authenticated user.
//   - PUT  /users/pin        : Set or replace the transaction PIN.
func Routes(app *fiber.App, userSvc *usersvc.Service, authSvc *authsvc.Service, cfg *config.App) {
	app.Post("/users/register", Register(userSvc))
	app.Post("/users/verify", Verify(userSvc))
	app.Post("/users/resend-otp", ResendOTP(userSvc))
	app.Get("/users/me", middleware.JwtProtected(cfg.Auth.Jwt), Me(userSvc, authSvc))
	app.Put("/users/pin", middleware.JwtProtected(cfg.Auth.Jwt), SetPin(userSvc, authSvc))
}

// Register returns a Fiber handler that signs a user up. The account stays
// inactive until the emailed OTP is verified.
// @Summary Register a new user
// @Tags users
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "User details"
// @Success 201 {object} common.Response "User registered"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 409 {object} common.ProblemDetails "Email already registered"
// @Router /users/register [post]
func Register(userSvc *usersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[RegisterRequest](c)
		if input == nil {
			return err // error response already written
		}
		u, err := userSvc.Register(c.UserContext(), input.FullName, input.Email, input.Password)
		if err != nil {
			log.Errorf("Failed to register user: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to register user", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Verification code sent", ToUserDTO(u))
	}
}

// Verify returns a Fiber handler that activates a user and opens their first
// SAVINGS account with the welcome bonus.
// @Summary Verify email
// @Tags users
// @Accept json
// @Produce json
// @Param request body VerifyRequest true "Email and OTP"
// @Success 200 {object} common.Response "User verified"
// @Failure 400 {object} common.ProblemDetails "Invalid or expired OTP"
// @Failure 404 {object} common.ProblemDetails "User not found"
// @Router /users/verify [post]
func Verify(userSvc *usersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[VerifyRequest](c)
		if input == nil {
			return err // error response already written
		}
		u, opened, err := userSvc.Verify(c.UserContext(), input.Email, input.OTP)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Verification failed", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "User verified", VerifiedDTO{
			User:    ToUserDTO(u),
			Account: accountweb.ToOpenedDTO(opened),
		})
	}
}

// ResendOTP returns a Fiber handler that issues a fresh OTP.
// @Summary Resend verification code
// @Tags users
// @Accept json
// @Produce json
// @Param request body ResendRequest true "Email"
// @Success 200 {object} common.Response "Verification code sent"
// @Failure 400 {object} common.ProblemDetails "Already verified"
// @Router /users/resend-otp [post]
func ResendOTP(userSvc *usersvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		input, err := common.BindAndValidate[ResendRequest](c)
		if input == nil {
			return err // error response already written
		}
		if err := userSvc.Resend(c.UserContext(), input.Email); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to resend verification code", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Verification code sent", nil)
	}
}

// Me returns a Fiber handler for the authenticated user.
// @Summary Current user
// @Tags users
// @Produce json
// @Success 200 {object} common.Response "User fetched"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /users/me [get]
// @Security Bearer
func Me(userSvc *usersvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, "missing user context", fiber.StatusUnauthorized)
		}
		userID, err := authSvc.CurrentUserID(token)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid user ID", err)
		}
		u, err := userSvc.GetUser(c.UserContext(), userID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get user", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "User fetched", ToUserDTO(u))
	}
}

// SetPin returns a Fiber handler that sets the transaction PIN.
// @Summary Set transaction PIN
// @Tags users
// @Accept json
// @Produce json
// @Param request body SetPinRequest true "Four digit PIN"
// @Success 200 {object} common.Response "PIN updated"
// @Failure 400 {object} common.ProblemDetails "Invalid PIN"
// @Failure 403 {object} common.ProblemDetails "Email not verified"
// @Router /users/pin [put]
// @Security Bearer
func SetPin(userSvc *usersvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, "missing user context", fiber.StatusUnauthorized)
		}
		userID, err := authSvc.CurrentUserID(token)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid user ID", err)
		}
		input, err := common.BindAndValidate[SetPinRequest](c)
		if input == nil {
			return err // error response already written
		}
		if err := userSvc.SetPin(c.UserContext(), userID, input.Pin); err != nil {
			return common.ProblemDetailsJSON(c, "Failed to set PIN", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "PIN updated", nil)
	}
}
