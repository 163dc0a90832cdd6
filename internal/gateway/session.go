package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/match"
	"github.com/voithos/swiftcode/internal/models"
	"github.com/voithos/swiftcode/internal/progress"
)

type sessionRole int

const (
	roleLobby sessionRole = iota
	roleRoom
)

// session holds the per-connection protocol state. Messages for one
// connection arrive serially from its readPump, but finalization can race a
// late race-complete against the keystroke that finished the run, so the
// mutable race state sits behind mu.
type session struct {
	conn *Connection
	role sessionRole

	mu        sync.Mutex
	engine    *progress.Engine
	matchID   uuid.UUID
	started   bool
	finalized bool
	outcome   *match.Outcome
}

func newSession(conn *Connection, role sessionRole) *session {
	return &session{conn: conn, role: role}
}

// handleMessage routes one decoded client intent.
func (s *session) handleMessage(raw []byte) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", s.conn.ID).
			Msg("malformed client message")
		s.conn.send(Outbound{Type: MsgError, Error: "BadMessage"})
		return
	}

	switch s.role {
	case roleLobby:
		s.handleLobbyMessage(msg)
	case roleRoom:
		s.handleRoomMessage(msg)
	}
}

func (s *session) handleLobbyMessage(msg Inbound) {
	ctx := context.Background()
	coord := s.conn.Manager.coord

	switch msg.Type {
	case MsgCreateMatch:
		m, err := coord.CreateAndJoin(ctx, s.conn.PlayerID, s.conn.PlayerName, match.CreateOptions{
			Lang:         msg.Lang,
			SinglePlayer: msg.SinglePlayer,
		})
		if err != nil {
			s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: errorCode(err)})
			return
		}
		s.conn.send(Outbound{Type: MsgMatchCreated, Req: msg.Type, Match: &m})

	case MsgJoinMatch:
		id, err := uuid.Parse(msg.MatchID)
		if err != nil {
			s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: "MatchNotFound"})
			return
		}
		m, err := coord.Join(ctx, id, s.conn.PlayerID, s.conn.PlayerName)
		if err != nil {
			s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: errorCode(err)})
			return
		}
		s.conn.send(Outbound{Type: MsgMatchUpdated, Req: msg.Type, Match: &m})

	case MsgLeaveMatch:
		if _, err := coord.Leave(ctx, s.conn.PlayerID); err != nil {
			s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: errorCode(err)})
		}

	default:
		log.Warn().
			Str("connection_id", s.conn.ID).
			Str("type", msg.Type).
			Msg("unknown lobby message type")
		s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: "UnknownType"})
	}
}

func (s *session) handleRoomMessage(msg Inbound) {
	switch msg.Type {
	case MsgReady:
		s.handleReady()
	case MsgKeystroke:
		s.handleKeystroke(msg)
	case MsgBackspace:
		s.handleBackspace()
	case MsgRaceComplete:
		s.handleRaceComplete(msg)
	case MsgLeaveMatch:
		if _, err := s.conn.Manager.coord.Leave(context.Background(), s.conn.PlayerID); err != nil {
			s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: errorCode(err)})
		}
	default:
		log.Warn().
			Str("connection_id", s.conn.ID).
			Str("type", msg.Type).
			Msg("unknown room message type")
		s.conn.send(Outbound{Type: MsgError, Req: msg.Type, Error: "UnknownType"})
	}
}

// handleReady completes the room handshake: the player's current match is
// located, a server-side progress engine is armed over its typeable text, and
// the connection joins the match's room pool so it receives the countdown and
// progress feed.
func (s *session) handleReady() {
	m, ex, remaining, err := s.conn.Manager.coord.Room(s.conn.PlayerID)
	if err != nil {
		s.conn.send(Outbound{Type: MsgError, Req: MsgReady, Error: errorCode(err)})
		return
	}

	s.mu.Lock()
	s.engine = progress.New(ex.Typeable)
	s.matchID = m.ID
	s.started = false
	s.finalized = false
	s.outcome = nil
	s.mu.Unlock()

	s.conn.Manager.registerRoom(s.conn, m.ID)
	s.conn.send(Outbound{
		Type:            MsgReadyRes,
		Match:           &m,
		Exercise:        &ex,
		TimeRemainingMS: remaining.Milliseconds(),
	})

	log.Info().
		Str("player_id", s.conn.PlayerID).
		Str("match_id", m.ID.String()).
		Msg("player ready")
}

// raceEngine returns the armed engine once the match has actually started.
// The started check hits the coordinator once and is then cached, so the
// per-keystroke path stays lock-local.
func (s *session) raceEngine() *progress.Engine {
	if s.engine == nil {
		return nil
	}
	if !s.started {
		m, err := s.conn.Manager.coord.Get(s.matchID)
		if err != nil || m.State != models.MatchStateRunning {
			return nil
		}
		s.started = true
	}
	return s.engine
}

func (s *session) handleKeystroke(msg Inbound) {
	chars := []rune(msg.Char)
	if len(chars) == 0 {
		return
	}

	s.mu.Lock()
	eng := s.raceEngine()
	if eng == nil || s.finalized {
		s.mu.Unlock()
		log.Debug().
			Str("player_id", s.conn.PlayerID).
			Msg("keystroke outside a running race ignored")
		return
	}
	before := eng.Pos()
	completed := eng.Key(chars[0])
	pos, length := eng.Pos(), eng.MistakePathLen()
	s.mu.Unlock()

	if pos != before || length > 0 {
		s.broadcastProgress(pos, length)
	}
	if completed {
		s.finalize()
	}
}

func (s *session) handleBackspace() {
	s.mu.Lock()
	eng := s.raceEngine()
	if eng == nil || s.finalized {
		s.mu.Unlock()
		return
	}
	before := eng.MistakePathLen()
	eng.Backspace()
	pos, length := eng.Pos(), eng.MistakePathLen()
	s.mu.Unlock()

	// Backspace with no mistake path is a no-op; spare the room the frame.
	if length != before {
		s.broadcastProgress(pos, length)
	}
}

// handleRaceComplete validates the client's own report against the
// authoritative engine and re-sends the ack. The server finalizes on its own
// engine's completion, so this is idempotent bookkeeping, not a trigger.
func (s *session) handleRaceComplete(msg Inbound) {
	s.mu.Lock()
	eng := s.engine
	finalized := s.finalized
	out := s.outcome
	s.mu.Unlock()

	if eng == nil || !eng.Completed() {
		s.conn.send(Outbound{Type: MsgError, Req: MsgRaceComplete, Error: "RaceNotComplete"})
		return
	}
	if msg.Stats != nil {
		counters := eng.Counters()
		if msg.Stats.Keystrokes != counters.Keystrokes || msg.Stats.Mistakes != counters.Mistakes {
			log.Warn().
				Str("player_id", s.conn.PlayerID).
				Int("client_keystrokes", msg.Stats.Keystrokes).
				Int("server_keystrokes", counters.Keystrokes).
				Int("client_mistakes", msg.Stats.Mistakes).
				Int("server_mistakes", counters.Mistakes).
				Msg("client race report disagrees with server engine")
		}
	}
	if !finalized {
		s.finalize()
		return
	}
	if out != nil {
		s.sendAck(out)
	}
}

// finalize records the finished run with the coordinator exactly once and
// acks the player with their authoritative stats.
func (s *session) finalize() {
	s.mu.Lock()
	if s.finalized || s.engine == nil {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	counters := s.engine.Counters()
	s.mu.Unlock()

	out, err := s.conn.Manager.coord.CompleteRace(context.Background(), s.conn.PlayerID, counters)
	if err != nil {
		if errors.Is(err, match.ErrAlreadyFinished) {
			return
		}
		log.Error().
			Err(err).
			Str("player_id", s.conn.PlayerID).
			Msg("failed to record race completion")
		s.conn.send(Outbound{Type: MsgError, Req: MsgRaceComplete, Error: errorCode(err)})
		return
	}

	s.mu.Lock()
	s.outcome = out
	s.mu.Unlock()
	s.sendAck(out)
}

func (s *session) sendAck(out *match.Outcome) {
	s.conn.send(Outbound{
		Type:    MsgRaceCompleteAck,
		Match:   &out.Match,
		Stats:   &out.Stats,
		Won:     out.Won,
		Warning: out.Warning,
	})
}

func (s *session) broadcastProgress(pos, pathLen int) {
	out := Outbound{
		Type:        MsgRaceProgress,
		PlayerID:    s.conn.PlayerID,
		Pos:         pos,
		MistakePath: pathLen,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal race progress")
		return
	}
	s.conn.Manager.BroadcastRoom(s.matchID, payload)
}

// close runs on disconnect. Dropping either socket releases the player's
// roster slot, except a lobby drop while an in-race connection is still
// registered: the player switched to the room socket, not away.
func (s *session) close() {
	if s.role == roleLobby && s.conn.Manager.hasRoomConnection(s.conn.PlayerID) {
		return
	}
	if _, err := s.conn.Manager.coord.Leave(context.Background(), s.conn.PlayerID); err != nil {
		log.Error().
			Err(err).
			Str("player_id", s.conn.PlayerID).
			Msg("failed to release player on disconnect")
	}
}

// errorCode maps coordinator errors onto wire error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, match.ErrAlreadyInMatch):
		return "AlreadyInMatch"
	case errors.Is(err, match.ErrNotJoinable):
		return "NotJoinable"
	case errors.Is(err, match.ErrMatchNotFound):
		return "MatchNotFound"
	case errors.Is(err, match.ErrPlayerNotFound):
		return "PlayerNotFound"
	case errors.Is(err, match.ErrCapacityRace):
		return "CapacityRace"
	case errors.Is(err, match.ErrNotRunning):
		return "NotRunning"
	case errors.Is(err, match.ErrAlreadyFinished):
		return "AlreadyFinished"
	default:
		return "Internal"
	}
}
