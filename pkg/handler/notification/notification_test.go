package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/corebank/infra/eventbus"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func transferEvent() *events.TransferCompleted {
	return &events.TransferCompleted{
		ID:          uuid.New(),
		Amount:      decimal.RequireFromString("5000.00"),
		Description: "rent",
		Timestamp:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Debit: events.Leg{
			TransactionID: 240000000001, AccountNumber: 2400000001,
			OwnerName: "Ada", OwnerEmail: "ada@example.com", CounterpartyName: "Bayo",
			BalanceAfter: decimal.RequireFromString("15000.00"),
		},
		Credit: events.Leg{
			TransactionID: 240000000002, AccountNumber: 2400000002,
			OwnerName: "Bayo", OwnerEmail: "bayo@example.com", CounterpartyName: "Ada",
			BalanceAfter: decimal.RequireFromString("5000.00"),
		},
	}
}

func TestRegister_TransferAlertsOncePerEvent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bus := infraeventbus.NewWithMemory(logger)
	rec := &recorder{}
	Register(bus, rec, logger)

	evt := transferEvent()
	require.NoError(t, bus.Emit(context.Background(), evt))
	require.NoError(t, bus.Emit(context.Background(), evt))

	require.Len(t, rec.sent, 2)
	assert.Equal(t, "ada@example.com", rec.sent[0].To)
	assert.Equal(t, "Debit Alert: 5000.00", rec.sent[0].Subject)
	assert.Contains(t, rec.sent[0].Body, "5000.00 sent to Bayo")
	assert.Contains(t, rec.sent[0].Body, "Available balance: 15000.00")
	assert.Equal(t, "bayo@example.com", rec.sent[1].To)
	assert.Contains(t, rec.sent[1].Body, "received from Ada")
}

func TestHandleTransferCompleted_SkipsLegWithoutEmail(t *testing.T) {
	rec := &recorder{}
	evt := transferEvent()
	evt.Credit.OwnerEmail = ""

	handler := HandleTransferCompleted(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, handler(context.Background(), evt))
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "ada@example.com", rec.sent[0].To)
}

func TestHandleTransferCompleted_PropagatesDeliveryError(t *testing.T) {
	rec := &recorder{err: errors.New("smtp down")}
	handler := HandleTransferCompleted(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, handler(context.Background(), transferEvent()))
}

func TestHandleOTPIssued(t *testing.T) {
	rec := &recorder{}
	handler := HandleOTPIssued(rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := handler(context.Background(), &events.OTPIssued{
		ID: uuid.New(), FullName: "Chi", Email: "chi@example.com", OTP: "4821",
		ExpiresAt: time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, rec.sent, 1)
	assert.Equal(t, "chi@example.com", rec.sent[0].To)
	assert.Contains(t, rec.sent[0].Body, "4821")
}

func TestEventKey(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), EventKey(&events.AccountOpened{ID: id}))
	assert.Equal(t, id.String(), EventKey(&events.OTPIssued{ID: id}))
	assert.Empty(t, EventKey(events.AccountOpened{ID: id}))
}
