package idgen

import (
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultEpoch is the reference instant (ms since Unix epoch) all Snowflake
	// timestamps are measured from: 2010-11-04T01:42:54.657Z.
	DefaultEpoch int64 = 1288834974657

	datacenterBits = 5
	workerBits     = 5
	sequenceBits   = 12
	timestampBits  = 41

	// MaxDatacenterID is the largest datacenter id representable in 5 bits.
	MaxDatacenterID int64 = -1 ^ (-1 << datacenterBits)
	// MaxWorkerID is the largest worker id representable in 5 bits.
	MaxWorkerID int64 = -1 ^ (-1 << workerBits)

	sequenceMask int64 = -1 ^ (-1 << sequenceBits)
	maxElapsed   int64 = -1 ^ (-1 << timestampBits)

	workerShift     = sequenceBits
	datacenterShift = sequenceBits + workerBits
	timestampShift  = sequenceBits + workerBits + datacenterBits
)

// Snowflake generates 64-bit ids laid out (most to least significant) as
// 41 bits of milliseconds since the epoch, 5 bits datacenter id, 5 bits worker
// id and a 12 bit per-millisecond sequence.
//
// A Snowflake is safe for concurrent use. Ids are strictly increasing per
// instance as long as the clock does not move backwards; when it does, Next
// refuses to generate and returns ErrClockSkew.
type Snowflake struct {
	mu            sync.Mutex
	epoch         int64
	datacenterID  int64
	workerID      int64
	sequence      int64
	lastTimestamp int64
	clock         func() int64
}

// SnowflakeOption customizes a Snowflake at construction time.
type SnowflakeOption func(*Snowflake)

// WithEpoch overrides DefaultEpoch.
func WithEpoch(epochMillis int64) SnowflakeOption {
	return func(s *Snowflake) {
		s.epoch = epochMillis
	}
}

// WithClock replaces the millisecond wall clock. Intended for tests.
func WithClock(clock func() int64) SnowflakeOption {
	return func(s *Snowflake) {
		s.clock = clock
	}
}

// NewSnowflake builds a generator for the given datacenter and worker. Both ids
// must lie in [0, 31].
func NewSnowflake(datacenterID, workerID int64, opts ...SnowflakeOption) (*Snowflake, error) {
	if datacenterID < 0 || datacenterID > MaxDatacenterID {
		return nil, fmt.Errorf("%w: datacenter id %d not in [0, %d]", ErrConfiguration, datacenterID, MaxDatacenterID)
	}
	if workerID < 0 || workerID > MaxWorkerID {
		return nil, fmt.Errorf("%w: worker id %d not in [0, %d]", ErrConfiguration, workerID, MaxWorkerID)
	}
	s := &Snowflake{
		epoch:         DefaultEpoch,
		datacenterID:  datacenterID,
		workerID:      workerID,
		lastTimestamp: -1,
		clock:         func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the next id.
func (s *Snowflake) Next() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if now < s.lastTimestamp {
		return 0, fmt.Errorf("%w: refusing to generate for %dms", ErrClockSkew, s.lastTimestamp-now)
	}

	if now == s.lastTimestamp {
		s.sequence = (s.sequence + 1) & sequenceMask
		if s.sequence == 0 {
			// sequence exhausted for this millisecond
			now = s.waitNextMillis(s.lastTimestamp)
		}
	} else {
		s.sequence = 0
	}

	elapsed := now - s.epoch
	if elapsed < 0 {
		return 0, fmt.Errorf("%w: clock is before the epoch", ErrClockSkew)
	}
	if elapsed > maxElapsed {
		return 0, ErrTimestampOverflow
	}
	s.lastTimestamp = now

	return elapsed<<timestampShift |
		s.datacenterID<<datacenterShift |
		s.workerID<<workerShift |
		s.sequence, nil
}

func (s *Snowflake) waitNextMillis(last int64) int64 {
	now := s.clock()
	for now <= last {
		now = s.clock()
	}
	return now
}

// Parts is the decoded form of a Snowflake id.
type Parts struct {
	Timestamp    time.Time
	DatacenterID int64
	WorkerID     int64
	Sequence     int64
}

// Decompose splits id back into its fields, interpreting the timestamp
// relative to this generator's epoch.
func (s *Snowflake) Decompose(id int64) Parts {
	ms := id>>timestampShift + s.epoch
	return Parts{
		Timestamp:    time.UnixMilli(ms).UTC(),
		DatacenterID: (id >> datacenterShift) & MaxDatacenterID,
		WorkerID:     (id >> workerShift) & MaxWorkerID,
		Sequence:     id & sequenceMask,
	}
}
