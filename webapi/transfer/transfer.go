// Package transfer exposes the money transfer endpoint.
package transfer

import (
	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/middleware"
	authsvc "github.com/amirasaad/corebank/pkg/service/auth"
	"github.com/amirasaad/corebank/pkg/service/transfer"
	usersvc "github.com/amirasaad/corebank/pkg/service/user"
	"github.com/amirasaad/corebank/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderIdempotencyKey lets clients retry a transfer without moving money twice.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplayed is set on responses served from an earlier execution.
	HeaderIdempotentReplayed = "Idempotent-Replayed"
)

// Routes registers the transfer endpoint.
//
// Routes:
//   - POST /transfers : Send money from the caller's primary account.
func Routes(
	app *fiber.App,
	engine *transfer.Engine,
	guard *transfer.IdempotencyGuard,
	userSvc *usersvc.Service,
	authSvc *authsvc.Service,
	cfg *config.App,
) {
	app.Post("/transfers", middleware.JwtProtected(cfg.Auth.Jwt), Transfer(engine, guard, userSvc, authSvc))
}

// Transfer returns a Fiber handler that moves money from the caller's primary
// account to another account after checking the transaction PIN.
// @Summary Transfer funds
// @Description Debits the caller's primary account and credits the destination account atomically. Send an Idempotency-Key header to make retries safe.
// @Tags transfers
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client generated key, at most 255 characters"
// @Param request body TransferRequest true "Transfer details"
// @Success 201 {object} common.Response "Transfer successful"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized or invalid PIN"
// @Failure 404 {object} common.ProblemDetails "Unknown recipient"
// @Failure 409 {object} common.ProblemDetails "Account busy, retry"
// @Failure 422 {object} common.ProblemDetails "Insufficient funds or idempotency key reused"
// @Router /transfers [post]
// @Security Bearer
func Transfer(
	engine *transfer.Engine,
	guard *transfer.IdempotencyGuard,
	userSvc *usersvc.Service,
	authSvc *authsvc.Service,
) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := c.Locals("user").(*jwt.Token)
		if !ok {
			return common.ProblemDetailsJSON(c, "Unauthorized", nil, "missing user context", fiber.StatusUnauthorized)
		}
		userID, err := authSvc.CurrentUserID(token)
		if err != nil {
			log.Errorf("Failed to parse user ID from token: %v", err)
			return common.ProblemDetailsJSON(c, "Invalid user ID", err)
		}
		key := c.Get(HeaderIdempotencyKey)
		if len(key) > transfer.MaxIdempotencyKeyLength {
			return common.ProblemDetailsJSON(c, "Invalid Idempotency-Key", nil,
				"Idempotency-Key must be at most 255 characters", fiber.StatusBadRequest)
		}
		input, err := common.BindAndValidate[TransferRequest](c)
		if input == nil {
			return err // error response already written
		}

		ctx := c.UserContext()
		if err := userSvc.VerifyPin(ctx, userID, input.Pin); err != nil {
			return common.ProblemDetailsJSON(c, "Transaction PIN rejected", err)
		}

		req := transfer.Request{
			SourceUserID:       userID,
			DestinationAccount: input.DestinationAccount,
			Amount:             input.Amount,
			Description:        input.Description,
			Mode:               account.Mode(input.Mode),
		}
		res, replayed, err := guard.Do(ctx, key, req, engine.Transfer)
		if err != nil {
			log.Errorf("Transfer failed: %v", err)
			return common.ProblemDetailsJSON(c, "Transfer failed", err)
		}
		if replayed {
			c.Set(HeaderIdempotentReplayed, "true")
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Transfer successful", ToTransferResponse(res))
	}
}
