package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/voithos/swiftcode/internal/auth"
	"github.com/voithos/swiftcode/internal/match"
)

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// broadcastMessage targets either the whole lobby or one match room.
type broadcastMessage struct {
	lobby   bool
	matchID uuid.UUID
	payload []byte
}

// Manager owns all WebSocket connections: a lobby pool receiving the
// match-list feed, and per-match room pools receiving in-race traffic.
type Manager struct {
	coord    *match.Coordinator
	verifier *auth.Verifier
	clock    clockwork.Clock

	mu    sync.RWMutex
	lobby map[*Connection]bool
	rooms map[uuid.UUID]map[*Connection]bool

	upgrader    websocket.Upgrader
	config      ConnectionConfig
	broadcastCh chan broadcastMessage
}

// Connection represents one WebSocket client. Send is never closed; the done
// channel tells the write pump to drain and stop, so a broadcast racing a
// disconnect can at worst enqueue a message nobody reads.
type Connection struct {
	ID         string
	PlayerID   string
	PlayerName string
	Conn       *websocket.Conn
	Send       chan []byte
	Manager    *Manager

	session   *session
	done      chan struct{}
	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// shutdown signals the write pump to stop. Safe to call repeatedly and
// concurrently with in-flight broadcasts.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// NewManager creates a connection manager over the coordinator.
func NewManager(coord *match.Coordinator, verifier *auth.Verifier, clock clockwork.Clock, config ConnectionConfig) *Manager {
	return &Manager{
		coord:    coord,
		verifier: verifier,
		clock:    clock,
		lobby:    make(map[*Connection]bool),
		rooms:    make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// Start processes broadcast messages until ctx is done.
func (g *Manager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case msg := <-g.broadcastCh:
			g.handleBroadcast(msg)
		}
	}
}

// BroadcastLobby queues payload for every lobby connection.
func (g *Manager) BroadcastLobby(payload []byte) {
	select {
	case g.broadcastCh <- broadcastMessage{lobby: true, payload: payload}:
	default:
		log.Warn().Msg("broadcast channel full, dropping lobby message")
	}
}

// BroadcastRoom queues payload for every connection in one match room.
func (g *Manager) BroadcastRoom(matchID uuid.UUID, payload []byte) {
	select {
	case g.broadcastCh <- broadcastMessage{matchID: matchID, payload: payload}:
	default:
		log.Warn().Str("match_id", matchID.String()).Msg("broadcast channel full, dropping room message")
	}
}

func (g *Manager) handleBroadcast(msg broadcastMessage) {
	g.mu.RLock()
	var targets []*Connection
	if msg.lobby {
		for conn := range g.lobby {
			targets = append(targets, conn)
		}
	} else if room, ok := g.rooms[msg.matchID]; ok {
		for conn := range room {
			targets = append(targets, conn)
		}
	}
	g.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- msg.payload:
		default:
			// Connection is slow/dead, close it
			log.Warn().
				Str("connection_id", conn.ID).
				Str("player_id", conn.PlayerID).
				Msg("connection send buffer full, closing connection")
			g.unregister(conn)
			conn.Conn.Close()
		}
	}
}

func (g *Manager) registerLobby(conn *Connection) {
	g.mu.Lock()
	g.lobby[conn] = true
	g.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Msg("lobby connection registered")
}

func (g *Manager) registerRoom(conn *Connection, matchID uuid.UUID) {
	g.mu.Lock()
	if g.rooms[matchID] == nil {
		g.rooms[matchID] = make(map[*Connection]bool)
	}
	g.rooms[matchID][conn] = true
	g.mu.Unlock()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("match_id", matchID.String()).
		Msg("room connection registered")
}

// hasRoomConnection reports whether the player has a registered in-race
// connection in any room pool.
func (g *Manager) hasRoomConnection(playerID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, room := range g.rooms {
		for conn := range room {
			if conn.PlayerID == playerID {
				return true
			}
		}
	}
	return false
}

// unregister removes the connection from whichever pools hold it.
func (g *Manager) unregister(conn *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := false
	if g.lobby[conn] {
		delete(g.lobby, conn)
		removed = true
	}
	for matchID, room := range g.rooms {
		if room[conn] {
			delete(room, conn)
			removed = true
			if len(room) == 0 {
				delete(g.rooms, matchID)
			}
		}
	}
	if removed {
		conn.shutdown()
		log.Info().
			Str("connection_id", conn.ID).
			Str("player_id", conn.PlayerID).
			Msg("connection unregistered")
	}
}

// send marshals and queues a reply on this connection only.
func (c *Connection) send(msg Outbound) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal outbound message")
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("send buffer full, dropping reply")
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-c.done:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.session.close()
		c.Manager.unregister(c)
		c.shutdown()
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}
		c.session.handleMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
