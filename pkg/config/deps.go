package config

import (
	"log/slog"

	"github.com/amirasaad/corebank/pkg/cache"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/idgen"
	"github.com/amirasaad/corebank/pkg/repository"
)

// Deps holds all infrastructure dependencies for building the app and services.
type Deps struct {
	Uow         repository.UnitOfWork
	IDs         *idgen.Generator
	EventBus    eventbus.Bus
	ResultCache cache.ResultCache
	Logger      *slog.Logger
	Config      *App
}
