package config

import (
	"time"

	"github.com/shopspring/decimal"
)

type DB struct {
	Driver       string        `envconfig:"DRIVER" default:"postgres"`
	Url          string        `envconfig:"URL"`
	LockTimeout  time.Duration `envconfig:"LOCK_TIMEOUT" default:"5s"`
	MaxOpenConns int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	Migrate      bool          `envconfig:"MIGRATE" default:"true"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET" required:"true"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Jwt *Jwt `envconfig:"JWT"`
}

// IDGen configures the identifier generators. Worker and datacenter ids must
// be unique per process sharing a database.
type IDGen struct {
	WorkerID          int64 `envconfig:"WORKER_ID" default:"0"`
	DatacenterID      int64 `envconfig:"DATACENTER_ID" default:"0"`
	EpochMs           int64 `envconfig:"EPOCH_MS" default:"1288834974657"`
	AccountDigits     int   `envconfig:"ACCOUNT_DIGITS" default:"10"`
	TransactionDigits int   `envconfig:"TRANSACTION_DIGITS" default:"12"`
}

type Bank struct {
	// WelcomeBonus is credited to the first account a user opens. Zero disables it.
	WelcomeBonus decimal.Decimal `envconfig:"WELCOME_BONUS" default:"20000.00"`
	OTPTTL       time.Duration   `envconfig:"OTP_TTL" default:"10m"`
	OTPLength    int             `envconfig:"OTP_LENGTH" default:"4"`
}

// EventBus selects the transport for domain events: memory, memory-async,
// redis or kafka. A redis or kafka bus that cannot connect falls back to
// memory-async.
type EventBus struct {
	Driver            string        `envconfig:"DRIVER" default:"memory-async"`
	Group             string        `envconfig:"GROUP" default:"corebank"`
	DLQRetryInterval  time.Duration `envconfig:"DLQ_RETRY_INTERVAL" default:"5m"`
	RedisURL          string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	RedisStream       string        `envconfig:"REDIS_STREAM" default:"corebank:events"`
	KafkaBrokers      string        `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic        string        `envconfig:"KAFKA_TOPIC" default:"corebank.events"`
	KafkaSASLUsername string        `envconfig:"KAFKA_SASL_USERNAME"`
	KafkaSASLPassword string        `envconfig:"KAFKA_SASL_PASSWORD"`
	KafkaTLS          bool          `envconfig:"KAFKA_TLS" default:"false"`
}

// Idempotency configures the replay store for Idempotency-Key requests.
type Idempotency struct {
	Driver   string        `envconfig:"DRIVER" default:"memory"`
	RedisURL string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	Prefix   string        `envconfig:"PREFIX" default:"corebank:idem:"`
	TTL      time.Duration `envconfig:"TTL" default:"24h"`
}

type RateLimit struct {
	MaxRequests int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window      time.Duration `envconfig:"WINDOW" default:"1m"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[corebank]"`
}

type Server struct {
	Host string `envconfig:"HOST" default:"localhost"`
	Port int    `envconfig:"PORT" default:"3000"`
}

type App struct {
	Env         string       `envconfig:"APP_ENV" default:"development"`
	Server      *Server      `envconfig:"SERVER"`
	Log         *Log         `envconfig:"LOG"`
	DB          *DB          `envconfig:"DATABASE"`
	Auth        *Auth        `envconfig:"AUTH"`
	IDGen       *IDGen       `envconfig:"IDGEN"`
	Bank        *Bank        `envconfig:"BANK"`
	EventBus    *EventBus    `envconfig:"EVENTBUS"`
	Idempotency *Idempotency `envconfig:"IDEMPOTENCY"`
	RateLimit   *RateLimit   `envconfig:"RATE_LIMIT"`
}
