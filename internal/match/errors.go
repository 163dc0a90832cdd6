package match

import "errors"

var (
	// ErrAlreadyInMatch is returned when a player with a current match tries
	// to join or create another one.
	ErrAlreadyInMatch = errors.New("player is already in a match")

	// ErrNotJoinable is returned when the target match refuses new players.
	ErrNotJoinable = errors.New("match is not joinable")

	// ErrMatchNotFound is returned when the match id resolves to nothing live.
	ErrMatchNotFound = errors.New("match not found")

	// ErrPlayerNotFound is returned when an operation requires a player with
	// a current match and there is none.
	ErrPlayerNotFound = errors.New("player not found in any match")

	// ErrCapacityRace is returned to a join that lost the atomic capacity
	// check to a concurrent join.
	ErrCapacityRace = errors.New("concurrent join lost the capacity check")

	// ErrNotRunning is returned when a race result arrives for a match that
	// is not in the running state.
	ErrNotRunning = errors.New("match is not running")

	// ErrAlreadyFinished is returned when a player reports completion twice.
	ErrAlreadyFinished = errors.New("player already finished")
)
