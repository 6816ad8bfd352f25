package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// RedisEventBusConfig holds configuration for the Redis Streams event bus.
type RedisEventBusConfig struct {
	StreamPrefix     string
	Group            string
	Block            time.Duration
	DLQRetryInterval time.Duration
	DLQBatchSize     int64
}

// DefaultRedisEventBusConfig returns the defaults used when nil is passed to NewWithRedis.
func DefaultRedisEventBusConfig() *RedisEventBusConfig {
	return &RedisEventBusConfig{
		StreamPrefix:     "corebank:events",
		Group:            "corebank",
		Block:            2 * time.Second,
		DLQRetryInterval: 5 * time.Minute,
		DLQBatchSize:     10,
	}
}

// RedisEventBus publishes each event type to its own Redis stream and consumes
// it through a consumer group. Failed deliveries land in a per-type DLQ stream
// that a background worker replays.
type RedisEventBus struct {
	client *redis.Client
	config *RedisEventBusConfig
	logger *slog.Logger

	handlers    map[events.EventType][]eventbus.HandlerFunc
	handlersMtx sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithRedis connects to url (e.g. "redis://localhost:6379/0").
func NewWithRedis(url string, logger *slog.Logger, config *RedisEventBusConfig) (*RedisEventBus, error) {
	if url == "" {
		return nil, fmt.Errorf("redis event bus: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelPing()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	return newRedisEventBus(client, logger, config), nil
}

func newRedisEventBus(client *redis.Client, logger *slog.Logger, config *RedisEventBusConfig) *RedisEventBus {
	defaults := DefaultRedisEventBusConfig()
	if config == nil {
		config = defaults
	}
	if strings.TrimSpace(config.StreamPrefix) == "" {
		config.StreamPrefix = defaults.StreamPrefix
	}
	if config.Group == "" {
		config.Group = defaults.Group
	}
	if config.Block <= 0 {
		config.Block = defaults.Block
	}
	if config.DLQRetryInterval <= 0 {
		config.DLQRetryInterval = defaults.DLQRetryInterval
	}
	if config.DLQBatchSize <= 0 {
		config.DLQBatchSize = defaults.DLQBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &RedisEventBus{
		client:   client,
		config:   config,
		logger:   logger.With("bus", "redis"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		ctx:      ctx,
		cancel:   cancel,
	}
	b.startDLQRetryWorker()
	b.logger.Info("🚀 Redis event bus initialized",
		"stream_prefix", config.StreamPrefix,
		"group", config.Group,
		"dlq_retry_interval", config.DLQRetryInterval,
	)
	return b
}

// Close stops consumers and closes the client.
func (b *RedisEventBus) Close() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Emit publishes an event to its stream.
func (b *RedisEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("redis event bus: %w", err)
	}
	stream := streamNameFor(b.config.StreamPrefix, events.EventType(event.Type()))
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": string(raw)},
	}).Err(); err != nil {
		return fmt.Errorf("redis event bus: emit failed: %w", err)
	}
	b.logger.Debug("event emitted", "type", event.Type(), "stream", stream)
	return nil
}

// Register adds a handler. The first handler for a type starts its consumer.
func (b *RedisEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.handlersMtx.Lock()
	first := len(b.handlers[eventType]) == 0
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.handlersMtx.Unlock()
	if !first {
		return
	}

	stream := streamNameFor(b.config.StreamPrefix, eventType)
	err := b.client.XGroupCreateMkStream(b.ctx, stream, b.config.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		b.logger.Error("failed to create consumer group", "error", err, "stream", stream)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(eventType, stream, consumerName(eventType))
	}()
	b.logger.Info("handler registered", "event_type", eventType, "stream", stream)
}

func (b *RedisEventBus) consumeLoop(eventType events.EventType, stream, consumer string) {
	for {
		res, err := b.client.XReadGroup(b.ctx, &redis.XReadGroupArgs{
			Group:    b.config.Group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    b.config.Block,
		}).Result()
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			if !errors.Is(err, redis.Nil) {
				b.logger.Error("error reading from stream", "error", err, "stream", stream)
				time.Sleep(500 * time.Millisecond)
			}
			continue
		}
		for _, s := range res {
			for _, msg := range s.Messages {
				b.handleMessage(eventType, stream, msg)
			}
		}
	}
}

func (b *RedisEventBus) handleMessage(eventType events.EventType, stream string, msg redis.XMessage) {
	defer func() {
		if err := b.client.XAck(b.ctx, stream, b.config.Group, msg.ID).Err(); err != nil {
			b.logger.Error("failed to acknowledge message", "error", err, "msg_id", msg.ID)
		}
	}()

	raw, ok := msg.Values["event"].(string)
	if !ok {
		b.logger.Error("message without event field", "stream", stream, "msg_id", msg.ID)
		return
	}
	_, evt, err := decodeEnvelope([]byte(raw))
	if err != nil {
		b.logger.Error("failed to decode event", "error", err, "stream", stream, "msg_id", msg.ID)
		b.pushToDLQ(eventType, raw)
		return
	}

	if !executeHandlers(b.ctx, b.logger, eventType, evt, b.getHandlers(eventType), msg.ID) {
		b.pushToDLQ(eventType, raw)
	}
}

func (b *RedisEventBus) pushToDLQ(eventType events.EventType, raw string) {
	dlq := dlqStreamName(b.config.StreamPrefix, eventType)
	if err := b.client.XAdd(b.ctx, &redis.XAddArgs{
		Stream: dlq,
		Values: map[string]any{"event": raw},
	}).Err(); err != nil {
		b.logger.Error("failed to push to DLQ", "error", err, "stream", dlq)
		return
	}
	b.logger.Warn("event pushed to DLQ", "stream", dlq, "event_type", eventType)
}

func (b *RedisEventBus) getHandlers(eventType events.EventType) []eventbus.HandlerFunc {
	b.handlersMtx.RLock()
	defer b.handlersMtx.RUnlock()
	return append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
}

func (b *RedisEventBus) startDLQRetryWorker() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.config.DLQRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case <-ticker.C:
				b.processAllDLQs(b.ctx)
			}
		}
	}()
}

// processAllDLQs moves up to DLQBatchSize messages per registered type from
// its DLQ back onto the main stream.
func (b *RedisEventBus) processAllDLQs(ctx context.Context) {
	b.handlersMtx.RLock()
	types := make([]events.EventType, 0, len(b.handlers))
	for eventType := range b.handlers {
		types = append(types, eventType)
	}
	b.handlersMtx.RUnlock()

	for _, eventType := range types {
		dlq := dlqStreamName(b.config.StreamPrefix, eventType)
		msgs, err := b.client.XRangeN(ctx, dlq, "-", "+", b.config.DLQBatchSize).Result()
		if err != nil {
			b.logger.Error("failed to read DLQ", "error", err, "stream", dlq)
			continue
		}
		for _, msg := range msgs {
			if err := b.client.XAdd(ctx, &redis.XAddArgs{
				Stream: streamNameFor(b.config.StreamPrefix, eventType),
				Values: msg.Values,
			}).Err(); err != nil {
				b.logger.Error("failed to republish DLQ message", "error", err, "stream", dlq)
				break
			}
			_ = b.client.XDel(ctx, dlq, msg.ID).Err()
		}
		if len(msgs) > 0 {
			b.logger.Info("replayed DLQ messages", "stream", dlq, "count", len(msgs))
		}
	}
}

func consumerName(eventType events.EventType) string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), strings.ToLower(eventType.String()))
}

var _ eventbus.Bus = (*RedisEventBus)(nil)
