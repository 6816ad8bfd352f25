package idgen

import "errors"

var (
	// ErrConfiguration is returned when a generator is built with a worker or
	// datacenter id outside of its 5-bit range.
	ErrConfiguration = errors.New("idgen: invalid generator configuration")

	// ErrClockSkew is returned when the wall clock is observed to move backwards
	// relative to the last generated timestamp.
	ErrClockSkew = errors.New("idgen: clock moved backwards")

	// ErrTimestampOverflow is returned when the elapsed time since the epoch no
	// longer fits in the 41 timestamp bits.
	ErrTimestampOverflow = errors.New("idgen: timestamp overflows 41 bits")

	// ErrInvalidLength is returned when a numeric id is requested with fewer than two digits.
	ErrInvalidLength = errors.New("idgen: digit count must be at least 2")

	// ErrUnknownKind is returned by Generator.Generate for an unregistered kind.
	ErrUnknownKind = errors.New("idgen: unknown id kind")
)
