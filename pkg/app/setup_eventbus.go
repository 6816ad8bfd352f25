// Package app wires services and event handlers together.
package app

import (
	"github.com/amirasaad/corebank/pkg/handler/notification"
)

// setupEventBus registers the event handlers. Handlers run after the emitting
// unit of work has committed, so they never affect a transfer's outcome.
func (a *App) setupEventBus() {
	logger := a.Deps.Logger.With("component", "notification")
	notification.Register(
		a.Deps.EventBus,
		notification.LogNotifier{Logger: logger},
		logger,
	)
}
