//go:build kafka

package eventbus

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	testcontainerskafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func setupKafkaBus(tb testing.TB) *KafkaEventBus {
	tb.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	container, err := testcontainerskafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(tb, err)

	bus, err := NewWithKafka(strings.Join(brokers, ","), discardLogger(), &KafkaEventBusConfig{
		GroupID:     "test-" + uuid.NewString(),
		TopicPrefix: "test.events",
	})
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestKafkaBusHandlerReceivesEvent(t *testing.T) {
	bus := setupKafkaBus(t)
	received := make(chan int64, 1)
	bus.Register(events.EventTypeAccountOpened, func(ctx context.Context, e events.Event) error {
		received <- e.(*events.AccountOpened).AccountNumber
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), &events.AccountOpened{AccountNumber: 42}))
	select {
	case n := <-received:
		require.Equal(t, int64(42), n)
	case <-time.After(20 * time.Second):
		t.Fatal("handler did not receive event in time")
	}
}

func TestKafkaBusDLQRetry(t *testing.T) {
	bus := setupKafkaBus(t)

	var fail atomic.Bool
	fail.Store(true)
	var attempts atomic.Int32
	received := make(chan string, 1)
	bus.Register(events.EventTypeOTPIssued, func(ctx context.Context, e events.Event) error {
		attempts.Add(1)
		if fail.Load() {
			return fmt.Errorf("temporary failure")
		}
		received <- e.(*events.OTPIssued).Email
		return nil
	})

	require.NoError(t, bus.Emit(context.Background(), &events.OTPIssued{Email: "ada@example.com"}))
	require.Eventually(t, func() bool { return attempts.Load() >= 1 }, 20*time.Second, 100*time.Millisecond)
	time.Sleep(time.Second)

	fail.Store(false)
	bus.processAllDLQs(context.Background())

	select {
	case email := <-received:
		require.Equal(t, "ada@example.com", email)
	case <-time.After(20 * time.Second):
		t.Fatal("DLQ retry did not republish message in time")
	}
}
