package transfer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/amirasaad/corebank/pkg/domain/account"
)

// State is a step of the transfer state machine.
type State string

const (
	StateInitiated    State = "INITIATED"
	StateLocked       State = "LOCKED"
	StateValidated    State = "VALIDATED"
	StateDebited      State = "DEBITED"
	StateCredited     State = "CREDITED"
	StateLedgerPosted State = "LEDGER_POSTED"
	StateCommitted    State = "COMMITTED"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateFailed
}

var next = map[State]State{
	StateInitiated:    StateLocked,
	StateLocked:       StateValidated,
	StateValidated:    StateDebited,
	StateDebited:      StateCredited,
	StateCredited:     StateLedgerPosted,
	StateLedgerPosted: StateCommitted,
}

// machine tracks one transfer attempt. Transitions only move forward one
// step at a time, or to FAILED from any non-terminal state.
type machine struct {
	state   State
	history []State
	logger  *slog.Logger
}

func newMachine(logger *slog.Logger) *machine {
	return &machine{state: StateInitiated, history: []State{StateInitiated}, logger: logger}
}

func (m *machine) advance(to State) {
	if m.state.Terminal() || next[m.state] != to {
		panic("transfer: illegal transition " + string(m.state) + " -> " + string(to))
	}
	m.logger.Debug("transfer state", "from", m.state, "state", to)
	m.state = to
	m.history = append(m.history, to)
}

func (m *machine) fail(err error) {
	if m.state.Terminal() {
		return
	}
	level := slog.LevelError
	if callerError(err) {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "transfer failed", "at", m.state, "state", StateFailed, "error", err)
	m.state = StateFailed
	m.history = append(m.history, StateFailed)
}

// callerError reports failures the caller can correct or retry, as opposed
// to storage faults.
func callerError(err error) bool {
	for _, target := range []error{
		account.ErrInvalidAmount,
		account.ErrUnknownRecipient,
		account.ErrInsufficientFunds,
		account.ErrLockTimeout,
		account.ErrAccountNotFound,
		account.ErrCannotTransferToSameAccount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
