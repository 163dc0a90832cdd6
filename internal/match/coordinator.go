package match

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/config"
	"github.com/voithos/swiftcode/internal/events"
	"github.com/voithos/swiftcode/internal/models"
	"github.com/voithos/swiftcode/internal/progress"
	"github.com/voithos/swiftcode/internal/scoring"
	"github.com/voithos/swiftcode/internal/store"
)

const persistTimeout = 5 * time.Second

// ExerciseProvider supplies a prepared code sample for a language. The
// coordinator never derives typeable text itself.
type ExerciseProvider interface {
	Exercise(ctx context.Context, lang string) (*models.Exercise, error)
}

// CreateOptions configures a new match.
type CreateOptions struct {
	Lang         string
	SinglePlayer bool
}

// Outcome is the result of a finished run, handed back to the reporting
// player.
type Outcome struct {
	Stats   scoring.Stats
	Match   models.Match
	Won     bool
	Warning string
}

// entry pairs a live match with its exclusion scope. All lifecycle-affecting
// operations on one match (join, leave, tick, race completion) serialize on
// mu; operations on different matches run concurrently.
type entry struct {
	mu       sync.Mutex
	m        *models.Match
	ex       *models.Exercise
	finished map[string]bool
}

// Coordinator owns every live match: roster membership, lifecycle state, and
// the one-active-match-per-player invariant. All observable state changes are
// published on the event bus and persisted as an asynchronous side effect.
type Coordinator struct {
	cfg       config.RaceConfig
	clock     clockwork.Clock
	bus       *events.Bus
	matches   store.MatchStore
	scores    *scoring.Engine
	exercises ExerciseProvider

	// mu guards the lookup maps only. Lock order is entry.mu before mu;
	// nothing acquires entry.mu while holding mu.
	mu       sync.RWMutex
	live     map[uuid.UUID]*entry
	byPlayer map[string]uuid.UUID

	wakeCh chan struct{}
}

// NewCoordinator wires a coordinator over its collaborators.
func NewCoordinator(cfg config.RaceConfig, clock clockwork.Clock, bus *events.Bus, matches store.MatchStore, scores *scoring.Engine, exercises ExerciseProvider) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		clock:     clock,
		bus:       bus,
		matches:   matches,
		scores:    scores,
		exercises: exercises,
		live:      make(map[uuid.UUID]*entry),
		byPlayer:  make(map[string]uuid.UUID),
		wakeCh:    make(chan struct{}, 1),
	}
}

// CreateAndJoin constructs a new match for the player and admits them to it.
func (c *Coordinator) CreateAndJoin(ctx context.Context, playerID, playerName string, opts CreateOptions) (models.Match, error) {
	c.mu.RLock()
	_, inMatch := c.byPlayer[playerID]
	c.mu.RUnlock()
	if inMatch {
		return models.Match{}, ErrAlreadyInMatch
	}

	ex, err := c.exercises.Exercise(ctx, opts.Lang)
	if err != nil {
		return models.Match{}, err
	}

	now := c.clock.Now()
	maxPlayers := c.cfg.MaxPlayers
	if opts.SinglePlayer {
		maxPlayers = 1
	}
	m := &models.Match{
		ID:             uuid.New(),
		Lang:           ex.Lang,
		LangName:       ex.ProjectName,
		ExerciseID:     ex.ID,
		State:          models.MatchStateWaiting,
		MaxPlayers:     maxPlayers,
		IsSinglePlayer: opts.SinglePlayer,
		IsJoinable:     !opts.SinglePlayer,
		IsViewable:     !opts.SinglePlayer,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	e := &entry{m: m, ex: ex, finished: make(map[string]bool)}

	c.mu.Lock()
	if _, dup := c.byPlayer[playerID]; dup {
		c.mu.Unlock()
		return models.Match{}, ErrAlreadyInMatch
	}
	c.live[m.ID] = e
	c.byPlayer[playerID] = m.ID
	c.mu.Unlock()

	e.mu.Lock()
	c.admitLocked(e, playerID, playerName)
	advance(m, c.cfg, now)
	snap := m.Clone()
	c.publish(events.TopicMatchCreated, m)
	e.mu.Unlock()

	c.persistAsync(snap)
	c.poke()

	log.Info().
		Str("match_id", m.ID.String()).
		Str("player_id", playerID).
		Str("lang", m.Lang).
		Bool("single_player", m.IsSinglePlayer).
		Msg("match created")
	return snap, nil
}

// Join admits the player to an existing match. The capacity check and the
// roster append happen under the match's exclusion scope, so concurrent
// joins can never push occupancy past capacity.
func (c *Coordinator) Join(ctx context.Context, matchID uuid.UUID, playerID, playerName string) (models.Match, error) {
	c.mu.RLock()
	e, ok := c.live[matchID]
	_, inMatch := c.byPlayer[playerID]
	c.mu.RUnlock()
	if !ok {
		return models.Match{}, ErrMatchNotFound
	}
	if inMatch {
		return models.Match{}, ErrAlreadyInMatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.m

	if m.State == models.MatchStateComplete {
		return models.Match{}, ErrMatchNotFound
	}
	if m.HasPlayer(playerID) {
		return models.Match{}, ErrAlreadyInMatch
	}
	if m.NumPlayers >= m.MaxPlayers {
		// The joinable flag should already be down when the roster is
		// full; a join that still saw it up lost the capacity race.
		if m.IsJoinable {
			return models.Match{}, ErrCapacityRace
		}
		return models.Match{}, ErrNotJoinable
	}
	if !m.IsJoinable && !m.IsSinglePlayer {
		return models.Match{}, ErrNotJoinable
	}

	c.mu.Lock()
	if _, dup := c.byPlayer[playerID]; dup {
		c.mu.Unlock()
		return models.Match{}, ErrAlreadyInMatch
	}
	c.byPlayer[playerID] = m.ID
	c.mu.Unlock()

	c.admitLocked(e, playerID, playerName)
	advance(m, c.cfg, c.clock.Now())
	snap := m.Clone()
	c.publish(events.TopicMatchUpdated, m)

	c.persistAsync(snap)
	c.poke()

	log.Info().
		Str("match_id", m.ID.String()).
		Str("player_id", playerID).
		Int("num_players", m.NumPlayers).
		Msg("player joined match")
	return snap, nil
}

// Leave removes the player from their current match, if any. Leaving with no
// current match is a no-op, not an error; a disconnect is routed here too.
func (c *Coordinator) Leave(ctx context.Context, playerID string) (*models.Match, error) {
	c.mu.RLock()
	id, ok := c.byPlayer[playerID]
	var e *entry
	if ok {
		e = c.live[id]
	}
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if e == nil {
		c.mu.Lock()
		delete(c.byPlayer, playerID)
		c.mu.Unlock()
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	m := e.m

	c.removeLocked(e, playerID)

	c.mu.Lock()
	delete(c.byPlayer, playerID)
	c.mu.Unlock()

	now := c.clock.Now()
	if m.NumPlayers == 0 {
		c.completeLocked(e, now)
	} else {
		advance(m, c.cfg, now)
		if m.State == models.MatchStateRunning && c.allFinishedLocked(e) {
			c.completeLocked(e, now)
		} else {
			c.publish(events.TopicMatchUpdated, m)
		}
	}
	snap := m.Clone()

	c.persistAsync(snap)
	c.poke()

	log.Info().
		Str("match_id", m.ID.String()).
		Str("player_id", playerID).
		Int("num_players", m.NumPlayers).
		Str("state", string(m.State)).
		Msg("player left match")
	return &snap, nil
}

// CompleteRace records a player's finished run. The first finisher of a
// multiplayer match becomes the winner. The in-memory outcome is
// authoritative: a failing player-record update is reported only as a
// warning.
func (c *Coordinator) CompleteRace(ctx context.Context, playerID string, counters progress.Counters) (*Outcome, error) {
	c.mu.RLock()
	id, ok := c.byPlayer[playerID]
	var e *entry
	if ok {
		e = c.live[id]
	}
	c.mu.RUnlock()
	if !ok || e == nil {
		return nil, ErrPlayerNotFound
	}

	e.mu.Lock()
	m := e.m
	if m.State != models.MatchStateRunning {
		e.mu.Unlock()
		return nil, ErrNotRunning
	}
	if e.finished[playerID] {
		e.mu.Unlock()
		return nil, ErrAlreadyFinished
	}

	now := c.clock.Now()
	elapsed := now.Sub(*m.StartTime)
	stats := scoring.Compute(elapsed, counters)

	won := false
	if !m.IsSinglePlayer && m.Winner == "" {
		m.Winner = playerID
		m.WinnerTime = elapsed
		m.WinnerSpeed = stats.Speed
		won = true
	}
	e.finished[playerID] = true
	playerName := c.rosterNameLocked(e, playerID)

	m.UpdatedAt = now
	if c.allFinishedLocked(e) {
		c.completeLocked(e, now)
	} else {
		c.publish(events.TopicMatchUpdated, m)
	}
	snap := m.Clone()
	e.mu.Unlock()

	c.persistAsync(snap)

	out := &Outcome{Stats: stats, Match: snap, Won: won}
	if err := c.scores.RecordResult(ctx, playerID, playerName, stats, won); err != nil {
		out.Warning = "stats could not be saved"
	}

	log.Info().
		Str("match_id", snap.ID.String()).
		Str("player_id", playerID).
		Bool("won", won).
		Int64("time_ms", stats.TimeMS).
		Msg("race completed")
	return out, nil
}

// Get returns a snapshot of a live match.
func (c *Coordinator) Get(matchID uuid.UUID) (models.Match, error) {
	c.mu.RLock()
	e, ok := c.live[matchID]
	c.mu.RUnlock()
	if !ok {
		return models.Match{}, ErrMatchNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Clone(), nil
}

// Current returns the player's current match, if any.
func (c *Coordinator) Current(playerID string) (models.Match, bool) {
	c.mu.RLock()
	id, ok := c.byPlayer[playerID]
	var e *entry
	if ok {
		e = c.live[id]
	}
	c.mu.RUnlock()
	if !ok || e == nil {
		return models.Match{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Clone(), true
}

// Room returns everything a player's room handshake needs: the current
// match, its exercise, and the countdown value at this instant.
func (c *Coordinator) Room(playerID string) (models.Match, models.Exercise, time.Duration, error) {
	c.mu.RLock()
	id, ok := c.byPlayer[playerID]
	var e *entry
	if ok {
		e = c.live[id]
	}
	c.mu.RUnlock()
	if !ok || e == nil {
		return models.Match{}, models.Exercise{}, 0, ErrPlayerNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.m.Clone(), *e.ex, TimeRemaining(e.m, c.clock.Now()), nil
}

// LobbyMatches returns snapshots of all viewable matches, for the lobby
// snapshot sent to fresh subscribers.
func (c *Coordinator) LobbyMatches() []models.Match {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.live))
	for _, e := range c.live {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make([]models.Match, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.m.IsViewable {
			out = append(out, e.m.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

// TimeRemainingNow computes the countdown for a live match against the
// server clock.
func (c *Coordinator) TimeRemainingNow(matchID uuid.UUID) (time.Duration, error) {
	c.mu.RLock()
	e, ok := c.live[matchID]
	c.mu.RUnlock()
	if !ok {
		return 0, ErrMatchNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return TimeRemaining(e.m, c.clock.Now()), nil
}

// Tick re-evaluates every live match at the given instant. Evaluation is
// idempotent, so a late or duplicate tick converges without side effects.
func (c *Coordinator) Tick(now time.Time) {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.live))
	for _, e := range c.live {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		if advance(e.m, c.cfg, now) {
			snap := e.m.Clone()
			c.publish(events.TopicMatchUpdated, e.m)
			c.persistAsync(snap)
		}
		e.mu.Unlock()
	}
}

// NextDeadline returns the earliest instant any live match needs evaluation.
func (c *Coordinator) NextDeadline() (time.Time, bool) {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.live))
	for _, e := range c.live {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	var (
		earliest time.Time
		found    bool
	)
	for _, e := range entries {
		e.mu.Lock()
		if d, ok := nextDeadline(e.m, c.cfg); ok && (!found || d.Before(earliest)) {
			earliest = d
			found = true
		}
		e.mu.Unlock()
	}
	return earliest, found
}

// Wake exposes the wake channel the scheduler sleeps on; the coordinator
// pokes it whenever a sooner deadline may exist.
func (c *Coordinator) Wake() <-chan struct{} {
	return c.wakeCh
}

func (c *Coordinator) poke() {
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// admitLocked appends the player to the roster and recomputes occupancy and
// joinability. Caller holds e.mu and has already registered byPlayer.
func (c *Coordinator) admitLocked(e *entry, playerID, playerName string) {
	m := e.m
	m.Players = append(m.Players, playerID)
	m.PlayerNames = append(m.PlayerNames, playerName)
	m.NumPlayers = len(m.Players)
	if m.NumPlayers >= m.MaxPlayers {
		m.IsJoinable = false
	}
	m.UpdatedAt = c.clock.Now()
}

// removeLocked drops the player from the roster and their finish mark.
func (c *Coordinator) removeLocked(e *entry, playerID string) {
	m := e.m
	for i, p := range m.Players {
		if p == playerID {
			m.Players = append(m.Players[:i], m.Players[i+1:]...)
			m.PlayerNames = append(m.PlayerNames[:i], m.PlayerNames[i+1:]...)
			break
		}
	}
	m.NumPlayers = len(m.Players)
	delete(e.finished, playerID)
	m.UpdatedAt = c.clock.Now()
}

// rosterNameLocked returns the display name the player joined with.
func (c *Coordinator) rosterNameLocked(e *entry, playerID string) string {
	for i, p := range e.m.Players {
		if p == playerID && i < len(e.m.PlayerNames) {
			return e.m.PlayerNames[i]
		}
	}
	return ""
}

// allFinishedLocked reports whether every rostered player has finished.
func (c *Coordinator) allFinishedLocked(e *entry) bool {
	if len(e.m.Players) == 0 {
		return false
	}
	for _, p := range e.m.Players {
		if !e.finished[p] {
			return false
		}
	}
	return true
}

// completeLocked settles the match, clears every roster player's current
// match, removes the match from the live set, and publishes the final update
// and the removal. Caller holds e.mu.
func (c *Coordinator) completeLocked(e *entry, now time.Time) {
	m := e.m
	m.State = models.MatchStateComplete
	m.IsJoinable = false
	m.IsViewable = false
	m.UpdatedAt = now

	c.mu.Lock()
	for _, p := range m.Players {
		if c.byPlayer[p] == m.ID {
			delete(c.byPlayer, p)
		}
	}
	delete(c.live, m.ID)
	c.mu.Unlock()

	c.publish(events.TopicMatchUpdated, m)
	c.publish(events.TopicMatchRemoved, m)
}

// publish emits a snapshot event with a freshly computed countdown. Caller
// holds e.mu, which keeps per-match event order consistent with mutation
// order; bus handlers only enqueue, so this never blocks.
func (c *Coordinator) publish(topic events.Topic, m *models.Match) {
	now := c.clock.Now()
	c.bus.Publish(events.NewEvent(topic, m.Clone(), TimeRemaining(m, now), now))
}

// persistAsync stores the snapshot as a fire-and-forget side effect. A slow
// or failed save can neither block nor suppress the real-time notification;
// the in-memory state stays authoritative.
func (c *Coordinator) persistAsync(snap models.Match) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := c.matches.SaveMatch(ctx, &snap); err != nil {
			log.Error().
				Err(err).
				Str("match_id", snap.ID.String()).
				Msg("persistence unavailable; match state remains in memory")
		}
	}()
}
