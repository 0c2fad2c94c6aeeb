package services

import "errors"

// Error taxonomy. Validation and conflict errors never mutate state; handlers
// map them to HTTP codes. ErrMatchAlreadyCompleted doubles as the idempotent
// no-op signal for re-submitted results. ErrBracketInconsistent means bracket
// generation produced an impossible round/bracket mapping, a bug rather than
// a recoverable runtime condition.
var (
	ErrTournamentNotFound       = errors.New("tournament not found")
	ErrTournamentFull           = errors.New("tournament is full")
	ErrRegistrationClosed       = errors.New("tournament is not accepting registrations")
	ErrAlreadyRegistered        = errors.New("agent already registered for this tournament")
	ErrInsufficientParticipants = errors.New("not enough participants to start tournament (minimum 2)")
	ErrNotStartable             = errors.New("tournament already started or completed")

	ErrMatchNotFound         = errors.New("match not found")
	ErrMatchAlreadyCompleted = errors.New("match already completed")
	ErrMatchNotReady         = errors.New("match is missing a participant")
	ErrBracketInconsistent   = errors.New("bracket slot mapping is inconsistent")

	ErrAgentNotFound       = errors.New("agent not found")
	ErrAgentBanned         = errors.New("agent is banned")
	ErrAlreadyQueued       = errors.New("agent is already in matchmaking queue")
	ErrUnresolvedMatch     = errors.New("agent has an unresolved match")
	ErrNotInQueue          = errors.New("agent not found in queue")
	ErrInsufficientBalance = errors.New("insufficient balance for stake")

	ErrSimulatorFailed = errors.New("match simulation failed, retry later")
)
