// Package idgen generates the identifiers used across the bank: Snowflake ids
// for ledger entries and generic primary keys, and year-prefixed numeric ids for
// account numbers and transaction ids.
//
// Generators are plain values built once at process start and injected where
// they are needed; there is no package level state.
package idgen

import "fmt"

// Kind names the entity an id is generated for.
type Kind string

const (
	KindAccount     Kind = "account"
	KindTransaction Kind = "transaction"
	KindLedgerEntry Kind = "ledger_entry"
	KindEntity      Kind = "entity"
)

const (
	DefaultAccountDigits     = 10
	DefaultTransactionDigits = 12
)

// Config holds the generator settings read at process start.
type Config struct {
	DatacenterID      int64
	WorkerID          int64
	EpochMillis       int64
	AccountDigits     int
	TransactionDigits int
}

// Generator dispatches id generation by Kind.
type Generator struct {
	flake             *Snowflake
	numeric           *Numeric
	accountDigits     int
	transactionDigits int
}

// New builds a Generator. It fails with ErrConfiguration when the worker or
// datacenter id is out of range.
func New(cfg Config, opts ...SnowflakeOption) (*Generator, error) {
	if cfg.EpochMillis != 0 {
		opts = append([]SnowflakeOption{WithEpoch(cfg.EpochMillis)}, opts...)
	}
	flake, err := NewSnowflake(cfg.DatacenterID, cfg.WorkerID, opts...)
	if err != nil {
		return nil, err
	}
	g := &Generator{
		flake:             flake,
		numeric:           NewNumeric(),
		accountDigits:     cfg.AccountDigits,
		transactionDigits: cfg.TransactionDigits,
	}
	if g.accountDigits == 0 {
		g.accountDigits = DefaultAccountDigits
	}
	if g.transactionDigits == 0 {
		g.transactionDigits = DefaultTransactionDigits
	}
	if g.accountDigits < 2 || g.accountDigits > 18 || g.transactionDigits < 2 || g.transactionDigits > 18 {
		return nil, fmt.Errorf("%w: numeric id digits must be in [2, 18]", ErrConfiguration)
	}
	return g, nil
}

// Generate returns a new id for kind.
func (g *Generator) Generate(kind Kind) (int64, error) {
	switch kind {
	case KindAccount:
		return g.numeric.NextInt(g.accountDigits)
	case KindTransaction:
		return g.numeric.NextInt(g.transactionDigits)
	case KindLedgerEntry, KindEntity:
		return g.flake.Next()
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Snowflake exposes the underlying Snowflake generator.
func (g *Generator) Snowflake() *Snowflake {
	return g.flake
}
