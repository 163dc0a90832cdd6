package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HandleLobby upgrades a lobby connection. The client receives a full
// snapshot of viewable matches immediately, then lives off the lobby feed.
func (g *Manager) HandleLobby(w http.ResponseWriter, r *http.Request) {
	conn := g.upgrade(w, r, roleLobby)
	if conn == nil {
		return
	}
	g.registerLobby(conn)
	g.sendLobbySnapshot(conn)
}

// HandleMatch upgrades an in-race connection. The room pool registration
// happens on the ready handshake, once the player's match is known.
func (g *Manager) HandleMatch(w http.ResponseWriter, r *http.Request) {
	g.upgrade(w, r, roleRoom)
}

// upgrade authenticates the request, performs the WebSocket upgrade, and
// starts the connection's pumps. A nil return means the response was already
// written.
func (g *Manager) upgrade(w http.ResponseWriter, r *http.Request, role sessionRole) *Connection {
	playerID, playerName, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		log.Warn().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Msg("rejected unauthenticated WebSocket upgrade")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return nil
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil
	}

	now := g.clock.Now()
	conn := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		PlayerName:  playerName,
		Conn:        ws,
		Send:        make(chan []byte, 256),
		Manager:     g,
		done:        make(chan struct{}),
		ConnectedAt: now,
		LastPing:    now,
	}
	conn.session = newSession(conn, role)

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", playerID).
		Msg("WebSocket connection established")
	return conn
}

func (g *Manager) sendLobbySnapshot(conn *Connection) {
	matches := g.coord.LobbyMatches()
	out := Outbound{Type: MsgLobbySnapshot, Matches: matches}
	payload, err := json.Marshal(out)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal lobby snapshot")
		return
	}
	select {
	case conn.Send <- payload:
	default:
	}
}

// bearerToken pulls the JWT from the Authorization header or, for browser
// WebSocket clients that cannot set headers, the token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
