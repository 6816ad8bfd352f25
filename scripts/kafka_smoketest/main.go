// Command kafka_smoketest publishes a synthetic TransferCompleted event on
// the configured Kafka event bus and waits until a consumer receives it.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	infraeventbus "github.com/amirasaad/corebank/infra/eventbus"
	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RunSmokeTest round-trips one event through brokers within timeout.
func RunSmokeTest(ctx context.Context, brokers, group string, timeout time.Duration, logger *slog.Logger) error {
	cfg := infraeventbus.DefaultKafkaEventBusConfig()
	cfg.GroupID = group
	cfg.TopicPrefix = "corebank.smoketest"
	bus, err := infraeventbus.NewWithKafka(brokers, logger, cfg)
	if err != nil {
		logger.Error("connect failed", "error", err)
		return err
	}
	defer func() { _ = bus.Close() }()

	sent := &events.TransferCompleted{
		ID:          uuid.New(),
		Mode:        "SMOKE_TEST",
		Amount:      decimal.RequireFromString("1.00"),
		Description: "kafka smoke test",
		Timestamp:   time.Now().UTC(),
	}
	received := make(chan uuid.UUID, 8)
	bus.Register(events.EventTypeTransferCompleted, func(_ context.Context, e events.Event) error {
		if evt, ok := e.(*events.TransferCompleted); ok {
			received <- evt.ID
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := bus.Emit(ctx, sent); err != nil {
		logger.Error("emit failed", "error", err)
		return err
	}
	logger.Info("produced", "event_id", sent.ID)

	for {
		select {
		case id := <-received:
			if id == sent.ID {
				logger.Info("kafka smoke test passed", "event_id", id)
				return nil
			}
			logger.Info("skipping older event", "event_id", id)
		case <-ctx.Done():
			return errors.New("timed out waiting for the event to be consumed")
		}
	}
}

// main runs the smoke test and exits non-zero on failure.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := strings.TrimSpace(os.Getenv("BROKERS"))
	if brokers == "" {
		brokers = "localhost:9093,localhost:9092"
	}
	groupID := strings.TrimSpace(os.Getenv("GROUP_ID"))
	if groupID == "" {
		groupID = "corebank-smoketest"
	}
	if err := RunSmokeTest(context.Background(), brokers, groupID, 30*time.Second, logger); err != nil {
		logger.Error("kafka smoke test failed", "error", err)
		os.Exit(1)
	}
}
