package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/models"
	"github.com/voithos/swiftcode/internal/progress"
	"github.com/voithos/swiftcode/internal/store"
)

// Stats is the final scorecard for one player's run. Speed is in typeable
// characters per minute; PercentUnproductive is the fraction of keystrokes
// that did not advance the cursor.
type Stats struct {
	TimeMS              int64   `json:"time"`
	Speed               float64 `json:"speed"`
	Typeables           int     `json:"typeables"`
	Keystrokes          int     `json:"keystrokes"`
	PercentUnproductive float64 `json:"percentUnproductive"`
	Mistakes            int     `json:"mistakes"`
}

// Compute converts a completed run's counters and its elapsed wall-clock time
// into final statistics.
func Compute(elapsed time.Duration, c progress.Counters) Stats {
	st := Stats{
		TimeMS:     elapsed.Milliseconds(),
		Typeables:  c.Length,
		Keystrokes: c.Keystrokes,
		Mistakes:   c.Mistakes,
	}
	if mins := elapsed.Minutes(); mins > 0 {
		st.Speed = float64(c.Length) / mins
	}
	if c.Keystrokes > 0 {
		st.PercentUnproductive = 1 - float64(c.Length)/float64(c.Keystrokes)
	}
	return st
}

// Engine updates cumulative player records from finished runs.
type Engine struct {
	players store.PlayerStore
}

// NewEngine creates a scoring engine over the given player store.
func NewEngine(players store.PlayerStore) *Engine {
	return &Engine{players: players}
}

// RecordResult folds one finished run into the player's cumulative record.
//
// A store failure here is non-fatal: the race outcome is authoritative
// regardless of storage success, so the error is logged and returned only as
// a warning for the client.
func (e *Engine) RecordResult(ctx context.Context, playerID, playerName string, st Stats, won bool) error {
	p, err := e.players.LoadPlayer(ctx, playerID)
	if errors.Is(err, store.ErrNotFound) {
		p = &models.Player{ID: playerID, Name: playerName}
	} else if err != nil {
		log.Error().Err(err).Str("player_id", playerID).Msg("failed to load player record")
		return fmt.Errorf("player record unavailable: %w", err)
	}

	elapsed := time.Duration(st.TimeMS) * time.Millisecond
	p.Name = playerName
	p.TotalMatches++
	if won {
		p.Wins++
	}
	if p.BestTime == 0 || elapsed < p.BestTime {
		p.BestTime = elapsed
	}
	if st.Speed > p.BestSpeed {
		p.BestSpeed = st.Speed
	}
	n := p.TotalMatches
	p.AverageTime = (p.AverageTime*time.Duration(n-1) + elapsed) / time.Duration(n)
	p.AverageSpeed = (p.AverageSpeed*float64(n-1) + st.Speed) / float64(n)

	if err := e.players.SavePlayer(ctx, p); err != nil {
		log.Error().Err(err).Str("player_id", playerID).Msg("failed to save player record")
		return fmt.Errorf("player record not saved: %w", err)
	}

	log.Info().
		Str("player_id", playerID).
		Int64("time_ms", st.TimeMS).
		Float64("speed_cpm", st.Speed).
		Bool("won", won).
		Msg("recorded race result")
	return nil
}
