package models

import (
	"time"

	"github.com/google/uuid"
)

// MatchState defines the lifecycle state of a match.
type MatchState string

const (
	MatchStateWaiting  MatchState = "WAITING"
	MatchStateStarting MatchState = "STARTING"
	MatchStateRunning  MatchState = "RUNNING"
	MatchStateComplete MatchState = "COMPLETE"
)

// Match represents a single typing race.
//
// Lifecycle state transitions are owned by the match coordinator; roster
// membership is mutated only through its join/leave operations. Everything
// handed out to observers is a snapshot copy.
type Match struct {
	ID             uuid.UUID  `json:"id"`
	Lang           string     `json:"lang"`
	LangName       string     `json:"langName"`
	ExerciseID     string     `json:"exercise"`
	State          MatchState `json:"state"`
	MaxPlayers     int        `json:"maxPlayers"`
	NumPlayers     int        `json:"numPlayers"`
	IsSinglePlayer bool       `json:"isSinglePlayer"`
	IsJoinable     bool       `json:"isJoinable"`
	IsViewable     bool       `json:"isViewable"`

	// StartTime is the server-authoritative start instant. Nil unless the
	// match is in STARTING or a later state.
	StartTime *time.Time `json:"startTime,omitempty"`

	// Players is the roster in insertion order. PlayerNames is parallel.
	Players     []string `json:"players"`
	PlayerNames []string `json:"playerNames"`

	// StartingPlayers is the roster snapshot taken when the race began.
	StartingPlayers []string `json:"startingPlayers,omitempty"`

	Winner      string        `json:"winner,omitempty"`
	WinnerTime  time.Duration `json:"winnerTime,omitempty"`
	WinnerSpeed float64       `json:"winnerSpeed,omitempty"`

	// WasReset marks a match force-terminated by a server restart.
	WasReset bool `json:"wasReset,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy safe to hand to observers.
func (m *Match) Clone() Match {
	c := *m
	if m.StartTime != nil {
		t := *m.StartTime
		c.StartTime = &t
	}
	c.Players = append([]string(nil), m.Players...)
	c.PlayerNames = append([]string(nil), m.PlayerNames...)
	c.StartingPlayers = append([]string(nil), m.StartingPlayers...)
	return c
}

// HasPlayer reports whether id is currently in the roster.
func (m *Match) HasPlayer(id string) bool {
	for _, p := range m.Players {
		if p == id {
			return true
		}
	}
	return false
}
