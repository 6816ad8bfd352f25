package idgen

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Numeric produces N-digit decimal ids made of the current two-digit year
// followed by N-2 random digits. The year digits always stay at the front;
// only the random body is shuffled.
//
// Uniqueness is probabilistic. Callers rely on a unique constraint in storage
// and retry on collision.
type Numeric struct {
	mu  sync.Mutex
	rnd *rand.Rand
	now func() time.Time
}

// NumericOption customizes a Numeric generator.
type NumericOption func(*Numeric)

// WithRand replaces the random source. Intended for reproducible tests.
func WithRand(r *rand.Rand) NumericOption {
	return func(n *Numeric) {
		n.rnd = r
	}
}

// WithNow replaces the wall clock used to derive the year prefix.
func WithNow(now func() time.Time) NumericOption {
	return func(n *Numeric) {
		n.now = now
	}
}

// NewNumeric returns a Numeric generator seeded from the runtime's random source.
func NewNumeric(opts ...NumericOption) *Numeric {
	n := &Numeric{
		rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next returns a string of exactly digits characters.
func (n *Numeric) Next(digits int) (string, error) {
	if digits < 2 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidLength, digits)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	body := make([]byte, digits-2)
	for i := range body {
		body[i] = byte('0' + n.rnd.IntN(10))
	}
	n.rnd.Shuffle(len(body), func(i, j int) {
		body[i], body[j] = body[j], body[i]
	})

	var b strings.Builder
	b.Grow(digits)
	fmt.Fprintf(&b, "%02d", n.now().Year()%100)
	b.Write(body)
	return b.String(), nil
}

// NextInt is Next parsed as an int64. digits must be at most 18.
func (n *Numeric) NextInt(digits int) (int64, error) {
	if digits > 18 {
		return 0, fmt.Errorf("%w: %d digits do not fit in int64", ErrInvalidLength, digits)
	}
	s, err := n.Next(digits)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(s, 10, 64)
}
