package app

import (
	"github.com/amirasaad/corebank/pkg/config"
	accountsvc "github.com/amirasaad/corebank/pkg/service/account"
	authsvc "github.com/amirasaad/corebank/pkg/service/auth"
	"github.com/amirasaad/corebank/pkg/service/statement"
	"github.com/amirasaad/corebank/pkg/service/transfer"
	usersvc "github.com/amirasaad/corebank/pkg/service/user"
)

// App bundles the services behind the HTTP API.
type App struct {
	Deps             *config.Deps
	Config           *config.App
	TransferEngine   *transfer.Engine
	Idempotency      *transfer.IdempotencyGuard
	AccountService   *accountsvc.Service
	StatementService *statement.Service
	UserService      *usersvc.Service
	AuthService      *authsvc.Service
}

// New builds every service from deps and subscribes the event handlers.
func New(deps *config.Deps, cfg *config.App) *App {
	app := &App{
		Deps:   deps,
		Config: cfg,
	}
	app.setupEventBus()

	app.TransferEngine = transfer.NewFromDeps(deps)
	app.Idempotency = transfer.NewIdempotencyGuard(deps.ResultCache, cfg.Idempotency.TTL, deps.Logger)
	app.AccountService = accountsvc.NewFromDeps(deps, app.TransferEngine)
	app.StatementService = statement.New(deps.Uow, deps.Logger)
	app.UserService = usersvc.New(deps.Uow, app.AccountService, deps.EventBus, cfg.Bank, deps.Logger)
	app.AuthService = authsvc.New(app.UserService, cfg.Auth.Jwt, deps.Logger)
	return app
}
