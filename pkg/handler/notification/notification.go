// Package notification turns committed banking events into customer
// messages. Delivery itself is behind the Notifier interface; the default
// LogNotifier only records what would be sent.
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/amirasaad/corebank/pkg/handler/common"
)

// Message is one outgoing customer notification.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier delivers messages, e.g. over SMTP.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier logs messages instead of sending them.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Message) error {
	n.Logger.Info("📧 notification", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Register subscribes the notification handlers to bus. Each handler skips
// events it already delivered.
func Register(bus eventbus.Bus, notifier Notifier, logger *slog.Logger) {
	bus.Register(
		events.EventTypeTransferCompleted,
		common.WithIdempotency(
			HandleTransferCompleted(notifier, logger),
			common.NewIdempotencyTracker(),
			EventKey,
			"HandleTransferCompleted",
			logger,
		),
	)
	bus.Register(
		events.EventTypeAccountOpened,
		common.WithIdempotency(
			HandleAccountOpened(logger),
			common.NewIdempotencyTracker(),
			EventKey,
			"HandleAccountOpened",
			logger,
		),
	)
	bus.Register(
		events.EventTypeOTPIssued,
		common.WithIdempotency(
			HandleOTPIssued(notifier, logger),
			common.NewIdempotencyTracker(),
			EventKey,
			"HandleOTPIssued",
			logger,
		),
	)
}

// EventKey returns the event id used for de-duplication.
func EventKey(e events.Event) string {
	switch evt := e.(type) {
	case *events.TransferCompleted:
		return evt.ID.String()
	case *events.AccountOpened:
		return evt.ID.String()
	case *events.OTPIssued:
		return evt.ID.String()
	}
	return ""
}

// HandleTransferCompleted sends a debit alert to the sender and a credit
// alert to the recipient. Legs without an email are skipped.
func HandleTransferCompleted(notifier Notifier, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		evt, ok := e.(*events.TransferCompleted)
		if !ok {
			logger.Error("unexpected event type", "event_type", e.Type())
			return nil
		}
		alerts := []struct {
			leg  events.Leg
			kind string
			verb string
		}{
			{evt.Debit, "Debit", "sent to"},
			{evt.Credit, "Credit", "received from"},
		}
		for _, a := range alerts {
			if a.leg.OwnerEmail == "" {
				continue
			}
			body := fmt.Sprintf(
				"Hello %s,\n\n%s %s %s on %s.\nDescription: %s\nTransaction: %d\nAvailable balance: %s\n",
				a.leg.OwnerName,
				evt.Amount.StringFixed(2), a.verb, a.leg.CounterpartyName,
				evt.Timestamp.Format("2006-01-02 15:04:05 MST"),
				evt.Description,
				a.leg.TransactionID,
				a.leg.BalanceAfter.StringFixed(2),
			)
			msg := Message{
				To:      a.leg.OwnerEmail,
				Subject: fmt.Sprintf("%s Alert: %s", a.kind, evt.Amount.StringFixed(2)),
				Body:    body,
			}
			if err := notifier.Notify(ctx, msg); err != nil {
				return fmt.Errorf("notify %s leg: %w", a.kind, err)
			}
		}
		return nil
	}
}

// HandleAccountOpened records the new account. The event carries no contact
// details, so nothing is sent.
func HandleAccountOpened(logger *slog.Logger) eventbus.HandlerFunc {
	return func(_ context.Context, e events.Event) error {
		evt, ok := e.(*events.AccountOpened)
		if !ok {
			logger.Error("unexpected event type", "event_type", e.Type())
			return nil
		}
		logger.Info("account opened",
			"account", evt.AccountNumber,
			"type", evt.AccountType,
			"owner_id", evt.OwnerID,
			"opening_balance", evt.OpeningBalance.StringFixed(2),
		)
		return nil
	}
}

// HandleOTPIssued emails the verification code.
func HandleOTPIssued(notifier Notifier, logger *slog.Logger) eventbus.HandlerFunc {
	return func(ctx context.Context, e events.Event) error {
		evt, ok := e.(*events.OTPIssued)
		if !ok {
			logger.Error("unexpected event type", "event_type", e.Type())
			return nil
		}
		return notifier.Notify(ctx, Message{
			To:      evt.Email,
			Subject: "Verify your email",
			Body: fmt.Sprintf("Hello %s,\n\nYour verification code is %s. It expires at %s.\n",
				evt.FullName, evt.OTP, evt.ExpiresAt.Format("15:04 MST")),
		})
	}
}
