package gateway

import (
	"github.com/voithos/swiftcode/internal/models"
	"github.com/voithos/swiftcode/internal/scoring"
)

// Inbound intent types.
const (
	MsgCreateMatch  = "create-match"
	MsgJoinMatch    = "join-match"
	MsgLeaveMatch   = "leave-match"
	MsgReady        = "ready"
	MsgKeystroke    = "keystroke"
	MsgBackspace    = "backspace"
	MsgRaceComplete = "race-complete"
)

// Outbound event types.
const (
	MsgMatchCreated    = "match-created"
	MsgMatchUpdated    = "match-updated"
	MsgMatchRemoved    = "match-removed"
	MsgLobbySnapshot   = "lobby-snapshot"
	MsgReadyRes        = "ready-res"
	MsgRaceProgress    = "race-progress"
	MsgRaceCompleteAck = "race-complete-ack"
	MsgError           = "error"
)

// Inbound is a client intent. The player identity never comes from the
// message body; it is resolved from the connection's token at upgrade time.
type Inbound struct {
	Type         string        `json:"type"`
	Lang         string        `json:"lang,omitempty"`
	SinglePlayer bool          `json:"singlePlayer,omitempty"`
	MatchID      string        `json:"matchId,omitempty"`
	Char         string        `json:"char,omitempty"`
	Stats        *ClientReport `json:"stats,omitempty"`
}

// ClientReport is the client's view of its finished run. The server engine
// is authoritative; the report is only validated against it.
type ClientReport struct {
	TimeMS     int64 `json:"time"`
	Keystrokes int   `json:"keystrokes"`
	Mistakes   int   `json:"mistakes"`
}

// Outbound is a server event or reply.
type Outbound struct {
	Type            string           `json:"type"`
	Req             string           `json:"req,omitempty"`
	Match           *models.Match    `json:"match,omitempty"`
	Matches         []models.Match   `json:"matches,omitempty"`
	Exercise        *models.Exercise `json:"exercise,omitempty"`
	TimeRemainingMS int64            `json:"timeRemaining"`
	PlayerID        string           `json:"player,omitempty"`
	Pos             int              `json:"pos,omitempty"`
	MistakePath     int              `json:"mistakePath,omitempty"`
	Stats           *scoring.Stats   `json:"stats,omitempty"`
	Won             bool             `json:"won,omitempty"`
	Warning         string           `json:"warning,omitempty"`
	Error           string           `json:"error,omitempty"`
}
