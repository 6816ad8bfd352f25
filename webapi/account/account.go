package account

import (
	"strconv"
	"strings"
	"time"

	"github.com/amirasaad/corebank/pkg/config"
	"github.com/amirasaad/corebank/pkg/domain/account"
	"github.com/amirasaad/corebank/pkg/middleware"
	accountsvc "github.com/amirasaad/corebank/pkg/service/account"
	authsvc "github.com/amirasaad/corebank/pkg/service/auth"
	"github.com/amirasaad/corebank/pkg/service/statement"
	"github.com/amirasaad/corebank/webapi/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Routes registers HTTP routes for account-related operations. All routes
// are protected by authentication middleware and only ever expose accounts
// owned by the caller.
//
// Routes:
//   - POST /accounts                  : Open a new account for the authenticated user.
//   - GET  /accounts                  : List the caller's accounts.
//   - GET  /accounts/:number          : Retrieve one account.
//   - GET  /accounts/:number/balance  : Retrieve the balance of one account.
//   - GET  /statement                 : Ledger entries and totals over a window.
func Routes(
	app *fiber.App,
	accountSvc *accountsvc.Service,
	statementSvc *statement.Service,
	authSvc *authsvc.Service,
	cfg *config.App,
) {
	protected := middleware.JwtProtected(cfg.Auth.Jwt)
	app.Post("/accounts", protected, CreateAccount(accountSvc, authSvc))
	app.Get("/accounts", protected, ListAccounts(accountSvc, authSvc))
	app.Get("/accounts/:number", protected, GetAccount(accountSvc, authSvc))
	app.Get("/accounts/:number/balance", protected, GetBalance(accountSvc, authSvc))
	app.Get("/statement", protected, GetStatement(statementSvc, authSvc))
}

func currentUser(c *fiber.Ctx, authSvc *authsvc.Service) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, common.ProblemDetailsJSON(c, "Unauthorized", nil, "missing user context", fiber.StatusUnauthorized)
	}
	userID, err := authSvc.CurrentUserID(token)
	if err != nil {
		log.Errorf("Failed to parse user ID from token: %v", err)
		return uuid.Nil, common.ProblemDetailsJSON(c, "Invalid user ID", err)
	}
	return userID, nil
}

func accountNumber(c *fiber.Ctx) (int64, error) {
	number, err := strconv.ParseInt(c.Params("number"), 10, 64)
	if err != nil || number <= 0 {
		return 0, common.ProblemDetailsJSON(c, "Invalid account number", nil,
			"Account number must be a positive integer", fiber.StatusBadRequest)
	}
	return number, nil
}

// CreateAccount returns a Fiber handler that opens an account of the
// requested type. The owner's first account receives the welcome bonus.
// @Summary Open a new account
// @Description Opens a SAVINGS, CURRENT or FIXED_DEPOSIT account for the authenticated user.
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CreateAccountRequest true "Account type"
// @Success 201 {object} common.Response "Account created successfully"
// @Failure 400 {object} common.ProblemDetails "Invalid request"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Failure 403 {object} common.ProblemDetails "Email not verified"
// @Router /accounts [post]
// @Security Bearer
func CreateAccount(accountSvc *accountsvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUser(c, authSvc)
		if userID == uuid.Nil {
			return err
		}
		input, err := common.BindAndValidate[CreateAccountRequest](c)
		if input == nil {
			return err // error response already written
		}
		opened, err := accountSvc.OpenAccount(c.UserContext(), userID, account.Type(input.Type))
		if err != nil {
			log.Errorf("Failed to create account: %v", err)
			return common.ProblemDetailsJSON(c, "Failed to create account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusCreated, "Account created", ToOpenedDTO(opened))
	}
}

// ListAccounts returns a Fiber handler listing the caller's accounts.
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Success 200 {object} common.Response "Accounts fetched"
// @Failure 401 {object} common.ProblemDetails "Unauthorized"
// @Router /accounts [get]
// @Security Bearer
func ListAccounts(accountSvc *accountsvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUser(c, authSvc)
		if userID == uuid.Nil {
			return err
		}
		accts, err := accountSvc.ListAccounts(c.UserContext(), userID)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to list accounts", err)
		}
		dtos := make([]AccountDTO, len(accts))
		for i, a := range accts {
			dtos[i] = ToAccountDTO(a)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Accounts fetched", dtos)
	}
}

// GetAccount returns a Fiber handler for one of the caller's accounts.
// @Summary Get an account
// @Tags accounts
// @Produce json
// @Param number path int true "Account number"
// @Success 200 {object} common.Response "Account fetched"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Router /accounts/{number} [get]
// @Security Bearer
func GetAccount(accountSvc *accountsvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUser(c, authSvc)
		if userID == uuid.Nil {
			return err
		}
		number, err := accountNumber(c)
		if number == 0 {
			return err
		}
		a, err := accountSvc.GetAccount(c.UserContext(), userID, number)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get account", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Account fetched", ToAccountDTO(a))
	}
}

// GetBalance returns a Fiber handler for the balance of one of the caller's accounts.
// @Summary Get account balance
// @Tags accounts
// @Produce json
// @Param number path int true "Account number"
// @Success 200 {object} common.Response "Balance fetched"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Router /accounts/{number}/balance [get]
// @Security Bearer
func GetBalance(accountSvc *accountsvc.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUser(c, authSvc)
		if userID == uuid.Nil {
			return err
		}
		number, err := accountNumber(c)
		if number == 0 {
			return err
		}
		balance, err := accountSvc.GetBalance(c.UserContext(), userID, number)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to get balance", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Balance fetched", BalanceDTO{
			Number:  number,
			Balance: balance.StringFixed(account.Scale),
		})
	}
}

// GetStatement returns a Fiber handler for the caller's account statement.
// accounts is a comma separated list of account numbers, all accounts when
// empty; start and end are RFC 3339 timestamps bounding the window inclusively.
// @Summary Account statement
// @Tags accounts
// @Produce json
// @Param accounts query string false "Comma separated account numbers"
// @Param start query string false "Window start, RFC 3339"
// @Param end query string false "Window end, RFC 3339"
// @Success 200 {object} common.Response "Statement fetched"
// @Failure 400 {object} common.ProblemDetails "Invalid query"
// @Failure 404 {object} common.ProblemDetails "Account not found"
// @Router /statement [get]
// @Security Bearer
func GetStatement(statementSvc *statement.Service, authSvc *authsvc.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := currentUser(c, authSvc)
		if userID == uuid.Nil {
			return err
		}
		q, err := parseStatementQuery(c)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Invalid statement query", nil, err.Error(), fiber.StatusBadRequest)
		}
		st, err := statementSvc.ForOwner(c.UserContext(), userID, q)
		if err != nil {
			return common.ProblemDetailsJSON(c, "Failed to build statement", err)
		}
		return common.SuccessResponseJSON(c, fiber.StatusOK, "Statement fetched", ToStatementDTO(st))
	}
}

func parseStatementQuery(c *fiber.Ctx) (statement.Query, error) {
	var q statement.Query
	if raw := c.Query("accounts"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			number, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return q, err
			}
			q.Accounts = append(q.Accounts, number)
		}
	}
	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{{"start", &q.Start}, {"end", &q.End}} {
		raw := c.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, err
		}
		*bound.dst = &t
	}
	return q, nil
}
