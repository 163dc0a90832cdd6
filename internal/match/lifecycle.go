package match

import (
	"time"

	"github.com/voithos/swiftcode/internal/config"
	"github.com/voithos/swiftcode/internal/models"
)

// advance drives the match lifecycle state machine to a fixpoint for the
// given instant and reports whether anything observable changed.
//
//	WAITING  -> STARTING  solo immediately, multiplayer at min occupancy
//	STARTING -> WAITING   multiplayer only, occupancy dropped before start
//	STARTING -> STARTING  join window locks inside the lock cutoff
//	STARTING -> RUNNING   start instant reached; roster snapshot taken
//	RUNNING  -> COMPLETE  occupancy reached zero
//
// Transitions are based on absolute time, never on elapsed-since-last-tick,
// so a delayed wake-up converges to the correct state on the next
// evaluation. Evaluating a settled match changes nothing.
//
// The caller must hold the match's exclusion scope.
func advance(m *models.Match, cfg config.RaceConfig, now time.Time) bool {
	changed := false
	for step := true; step; {
		step = false
		switch m.State {
		case models.MatchStateWaiting:
			need := cfg.MinPlayersToStart
			if m.IsSinglePlayer {
				need = 1
			}
			if m.NumPlayers >= need {
				wait := cfg.MultiWait
				if m.IsSinglePlayer {
					wait = cfg.SoloWait
				}
				t := now.Add(wait)
				m.State = models.MatchStateStarting
				m.StartTime = &t
				step = true
			}

		case models.MatchStateStarting:
			if !m.IsSinglePlayer && m.NumPlayers < cfg.MinPlayersToStart && now.Before(*m.StartTime) {
				m.State = models.MatchStateWaiting
				m.StartTime = nil
				m.IsJoinable = m.NumPlayers < m.MaxPlayers
				step = true
				break
			}
			remaining := TimeRemaining(m, now)
			switch {
			case remaining <= 0:
				m.State = models.MatchStateRunning
				m.StartingPlayers = append([]string(nil), m.Players...)
				m.IsJoinable = false
				step = true
			case remaining < cfg.LockCutoff && m.IsJoinable:
				m.IsJoinable = false
				step = true
			}

		case models.MatchStateRunning:
			if m.NumPlayers == 0 {
				m.State = models.MatchStateComplete
				m.IsJoinable = false
				m.IsViewable = false
				step = true
			}
		}
		if step {
			changed = true
		}
	}
	if changed {
		m.UpdatedAt = now
	}
	return changed
}

// nextDeadline returns the next instant at which the match needs to be
// re-evaluated, if any. Only STARTING matches carry deadlines: the join-lock
// cutoff (while still joinable) and the start instant itself.
func nextDeadline(m *models.Match, cfg config.RaceConfig) (time.Time, bool) {
	if m.State != models.MatchStateStarting || m.StartTime == nil {
		return time.Time{}, false
	}
	deadline := *m.StartTime
	if m.IsJoinable {
		if lockAt := m.StartTime.Add(-cfg.LockCutoff); lockAt.Before(deadline) {
			deadline = lockAt
		}
	}
	return deadline, true
}
