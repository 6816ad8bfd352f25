package eventbus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/corebank/pkg/domain/events"
	"github.com/amirasaad/corebank/pkg/eventbus"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

const (
	headerEventType   = "event-type"
	headerDLQAttempts = "dlq-attempts"
)

// KafkaEventBusConfig holds configuration for the Kafka event bus.
type KafkaEventBusConfig struct {
	GroupID          string
	TopicPrefix      string
	DLQRetryInterval time.Duration
	DLQBatchSize     int
	// DLQMaxAttempts bounds how often a parked message is replayed before it
	// is dropped with an error log.
	DLQMaxAttempts int
	SASLUsername   string
	SASLPassword   string
	TLSEnabled     bool
}

// DefaultKafkaEventBusConfig returns the defaults used when nil is passed to NewWithKafka.
func DefaultKafkaEventBusConfig() *KafkaEventBusConfig {
	return &KafkaEventBusConfig{
		GroupID:          "corebank",
		TopicPrefix:      "corebank.events",
		DLQRetryInterval: 5 * time.Minute,
		DLQBatchSize:     10,
		DLQMaxAttempts:   5,
	}
}

func (c *KafkaEventBusConfig) withDefaults() *KafkaEventBusConfig {
	d := DefaultKafkaEventBusConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.GroupID == "" {
		out.GroupID = d.GroupID
	}
	if strings.TrimSpace(out.TopicPrefix) == "" {
		out.TopicPrefix = d.TopicPrefix
	}
	if out.DLQRetryInterval <= 0 {
		out.DLQRetryInterval = d.DLQRetryInterval
	}
	if out.DLQBatchSize <= 0 {
		out.DLQBatchSize = d.DLQBatchSize
	}
	if out.DLQMaxAttempts <= 0 {
		out.DLQMaxAttempts = d.DLQMaxAttempts
	}
	return &out
}

// KafkaEventBus publishes each event type to its own topic. Messages are
// keyed by the event's partition key, so alerts for one account arrive in
// order. Messages whose handlers fail are parked on "<prefix>.dlq.<type>"
// and replayed by a background worker up to DLQMaxAttempts times.
type KafkaEventBus struct {
	brokers []string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	config  *KafkaEventBusConfig
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[events.EventType][]eventbus.HandlerFunc
	readers  map[events.EventType]*kafka.Reader
	topics   sync.Map

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWithKafka connects to a comma-separated broker list and fails when the
// first broker cannot be reached.
func NewWithKafka(brokers string, logger *slog.Logger, config *KafkaEventBusConfig) (*KafkaEventBus, error) {
	parsed := parseBrokers(brokers)
	if len(parsed) == 0 {
		return nil, errors.New("kafka event bus: brokers are required")
	}
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dialer, transport, err := newKafkaDialer(config)
	if err != nil {
		return nil, err
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(parsed...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
	}
	if transport != nil {
		writer.Transport = transport
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &KafkaEventBus{
		brokers:  parsed,
		writer:   writer,
		dialer:   dialer,
		config:   config,
		logger:   logger.With("bus", "kafka"),
		handlers: make(map[events.EventType][]eventbus.HandlerFunc),
		readers:  make(map[events.EventType]*kafka.Reader),
		ctx:      ctx,
		cancel:   cancel,
	}

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	conn, err := dialer.DialContext(pingCtx, "tcp", parsed[0])
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("kafka event bus: connection failed: %w", err)
	}
	_ = conn.Close()

	b.startDLQRetryWorker()
	b.logger.Info("🚀 Kafka event bus initialized",
		"brokers", parsed,
		"group_id", config.GroupID,
		"topic_prefix", config.TopicPrefix,
		"tls_enabled", config.TLSEnabled,
		"sasl_enabled", dialer.SASLMechanism != nil,
	)
	return b, nil
}

// Close stops consumers and flushes the writer.
func (b *KafkaEventBus) Close() error {
	b.cancel()
	b.mu.Lock()
	for _, r := range b.readers {
		_ = r.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
	return b.writer.Close()
}

// Emit publishes event to its type's topic.
func (b *KafkaEventBus) Emit(ctx context.Context, event events.Event) error {
	raw, err := encodeEnvelope(event)
	if err != nil {
		return fmt.Errorf("kafka event bus: %w", err)
	}
	eventType := events.EventType(event.Type())
	key := eventType.String()
	if k, ok := event.(events.Keyed); ok {
		key = k.PartitionKey()
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   raw,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(eventType)}},
	}
	if err := b.write(ctx, topicNameFor(b.config.TopicPrefix, eventType), msg); err != nil {
		return fmt.Errorf("kafka event bus: publish failed: %w", err)
	}
	return nil
}

// Register adds a handler. The first handler for a type starts its reader.
func (b *KafkaEventBus) Register(eventType events.EventType, handler eventbus.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	if _, ok := b.readers[eventType]; ok {
		return
	}

	topic := topicNameFor(b.config.TopicPrefix, eventType)
	if err := b.ensureTopic(b.ctx, topic); err != nil {
		b.logger.Error("kafka ensure topic error", "error", err, "topic", topic)
		return
	}
	reader := kafka.NewReader(b.readerConfig(topic, b.config.GroupID, time.Second))
	b.readers[eventType] = reader

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.consumeLoop(eventType, reader)
	}()
}

func (b *KafkaEventBus) readerConfig(topic, group string, maxWait time.Duration) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:     b.brokers,
		GroupID:     group,
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     maxWait,
		Dialer:      b.dialer,
	}
}

// write creates topic on first use and publishes msg to it.
func (b *KafkaEventBus) write(ctx context.Context, topic string, msg kafka.Message) error {
	if err := b.ensureTopic(ctx, topic); err != nil {
		return err
	}
	msg.Topic = topic
	msg.Time = time.Now()
	return b.writer.WriteMessages(ctx, msg)
}

func (b *KafkaEventBus) consumeLoop(eventType events.EventType, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(b.ctx)
		if err != nil {
			if b.ctx.Err() != nil {
				return
			}
			b.logger.Error("kafka consume error", "error", err, "event_type", eventType)
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := b.processMessage(eventType, msg); err != nil {
			// Uncommitted: the group redelivers it.
			b.logger.Error("kafka message processing failed; will retry",
				"error", err, "topic", msg.Topic, "offset", msg.Offset)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err := reader.CommitMessages(b.ctx, msg); err != nil {
			b.logger.Error("kafka commit error", "error", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// processMessage returns an error only when a failed message could not be
// parked on the DLQ.
func (b *KafkaEventBus) processMessage(eventType events.EventType, msg kafka.Message) error {
	msgID := msg.Topic + "@" + strconv.FormatInt(msg.Offset, 10)
	_, evt, err := decodeEnvelope(msg.Value)
	if err != nil {
		b.logger.Error("failed to decode event", "error", err, "msg_id", msgID)
		return b.park(eventType, msg)
	}
	if executeHandlers(b.ctx, b.logger, eventType, evt, b.getHandlers(eventType), msgID) {
		return nil
	}
	return b.park(eventType, msg)
}

// park copies msg onto the DLQ topic, carrying its replay count.
func (b *KafkaEventBus) park(eventType events.EventType, msg kafka.Message) error {
	topic := dlqTopicNameFor(b.config.TopicPrefix, eventType)
	dlq := kafka.Message{
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: withAttempts(msg.Headers, dlqAttempts(msg.Headers)),
	}
	if err := b.write(b.ctx, topic, dlq); err != nil {
		return fmt.Errorf("kafka event bus: dlq publish failed: %w", err)
	}
	b.logger.Warn("message sent to DLQ", "event_type", eventType, "dlq_topic", topic, "key", string(msg.Key))
	return nil
}

func (b *KafkaEventBus) getHandlers(eventType events.EventType) []eventbus.HandlerFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]eventbus.HandlerFunc(nil), b.handlers[eventType]...)
}

func (b *KafkaEventBus) ensureTopic(ctx context.Context, topic string) error {
	if _, ok := b.topics.Load(topic); ok {
		return nil
	}
	conn, err := b.dialer.DialContext(ctx, "tcp", b.brokers[0])
	if err != nil {
		return fmt.Errorf("kafka event bus: dial failed: %w", err)
	}
	defer func() { _ = conn.Close() }()
	err = conn.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("kafka event bus: create topic %s: %w", topic, err)
	}
	b.topics.Store(topic, struct{}{})
	return nil
}

func (b *KafkaEventBus) startDLQRetryWorker() {
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

// processAllDLQs replays up to DLQBatchSize parked messages per registered
// type onto the original topic.
func (b *KafkaEventBus) processAllDLQs(ctx context.Context) {
	b.mu.RLock()
	types := make([]events.EventType, 0, len(b.handlers))
	for eventType := range b.handlers {
		types = append(types, eventType)
	}
	b.mu.RUnlock()

	for _, eventType := range types {
		b.retryDLQ(ctx, eventType)
	}
}

func (b *KafkaEventBus) retryDLQ(ctx context.Context, eventType events.EventType) {
	dlqTopic := dlqTopicNameFor(b.config.TopicPrefix, eventType)
	reader := kafka.NewReader(b.readerConfig(dlqTopic, b.config.GroupID+"-dlq-retry", 250*time.Millisecond))
	defer func() { _ = reader.Close() }()

	topic := topicNameFor(b.config.TopicPrefix, eventType)
	for i := 0; i < b.config.DLQBatchSize; i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			return
		}

		attempts := dlqAttempts(msg.Headers)
		if attempts > b.config.DLQMaxAttempts {
			b.logger.Error("dropping DLQ message after max attempts",
				"event_type", eventType, "key", string(msg.Key), "attempts", attempts-1)
		} else if err := b.write(ctx, topic, kafka.Message{
			Key:     msg.Key,
			Value:   msg.Value,
			Headers: msg.Headers,
		}); err != nil {
			b.logger.Error("failed to republish DLQ message", "error", err, "topic", topic)
			return
		}
		_ = reader.CommitMessages(ctx, msg)
	}
}

// dlqAttempts returns how many times the message has been parked, plus one.
func dlqAttempts(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key == headerDLQAttempts {
			n, _ := strconv.Atoi(string(h.Value))
			return n + 1
		}
	}
	return 1
}

func withAttempts(headers []kafka.Header, attempts int) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers)+1)
	for _, h := range headers {
		if h.Key != headerDLQAttempts {
			out = append(out, h)
		}
	}
	return append(out, kafka.Header{Key: headerDLQAttempts, Value: []byte(strconv.Itoa(attempts))})
}

func newKafkaDialer(config *KafkaEventBusConfig) (*kafka.Dialer, *kafka.Transport, error) {
	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	transport := &kafka.Transport{}
	secured := false

	if config.TLSEnabled {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		dialer.TLS = tlsConfig
		transport.TLS = tlsConfig
		secured = true
	}

	username := strings.TrimSpace(config.SASLUsername)
	password := strings.TrimSpace(config.SASLPassword)
	if username != "" || password != "" {
		if username == "" || password == "" {
			return nil, nil, errors.New("kafka event bus: sasl username and password are required")
		}
		mechanism := plain.Mechanism{Username: username, Password: password}
		dialer.SASLMechanism = mechanism
		transport.SASL = mechanism
		secured = true
	}

	if !secured {
		return dialer, nil, nil
	}
	return dialer, transport, nil
}

func parseBrokers(brokers string) []string {
	var out []string
	for _, p := range strings.Split(brokers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// topicNameFor maps "Transfer.Completed" under "corebank.events" to
// "corebank.events.transfer.completed".
func topicNameFor(prefix string, eventType events.EventType) string {
	return prefix + "." + strings.ToLower(eventType.String())
}

func dlqTopicNameFor(prefix string, eventType events.EventType) string {
	return prefix + ".dlq." + strings.ToLower(eventType.String())
}

var _ eventbus.Bus = (*KafkaEventBus)(nil)
