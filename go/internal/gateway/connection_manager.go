// Package gateway owns the websocket transport: the live connection
// registry, per-session broadcast pools, and the routing of client
// messages into the coordinator.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Polimar/BrainBrawler/go/internal/events"
)

// MessageHandler consumes inbound client traffic and connection drops.
type MessageHandler interface {
	HandleMessage(conn *Connection, data []byte)
	HandleDisconnect(conn *Connection)
}

// ConnectionManager maps authenticated participants to their live
// websocket connections and fans events out per session.
type ConnectionManager struct {
	mu sync.RWMutex
	// Connection pools organized by session, plus the participant
	// index used for directed sends (signals, error replies).
	sessionConnections map[uuid.UUID]map[*Connection]bool
	byParticipant      map[uuid.UUID]map[string]*Connection

	upgrader websocket.Upgrader
	config   ConnectionConfig
	handler  MessageHandler

	broadcastCh chan broadcastMessage
}

// Connection represents one client's websocket link.
type Connection struct {
	ID            string
	ParticipantID string
	DisplayName   string

	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// sessionID is read by the read pump and cleared by the broadcast
	// goroutine when a slow connection is dropped.
	mu        sync.Mutex
	sessionID uuid.UUID
}

// Session returns the session this connection is bound to, or uuid.Nil
// before a join.
func (c *Connection) Session() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Connection) setSession(id uuid.UUID) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type broadcastMessage struct {
	SessionID     uuid.UUID
	Data          []byte
	EventType     events.EventType
	ParticipantID string // optional: only send to this participant
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  16 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. The handler is
// attached later via SetHandler to break the construction cycle with
// the router.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[uuid.UUID]map[*Connection]bool),
		byParticipant:      make(map[uuid.UUID]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetHandler attaches the inbound message handler.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start processes broadcast messages until ctx is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a websocket for an
// authenticated participant and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, participantID, displayName string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:            uuid.New().String(),
		ParticipantID: participantID,
		DisplayName:   displayName,
		Conn:          conn,
		Send:          make(chan []byte, 256),
		Manager:       cm,
		ConnectedAt:   time.Now(),
		LastPing:      time.Now(),
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("participant_id", participantID).
		Msg("websocket connection established")

	return nil
}

// Bind attaches a connection to a session's pools after a successful
// join.
func (cm *ConnectionManager) Bind(conn *Connection, sessionID uuid.UUID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn.setSession(sessionID)
	if cm.sessionConnections[sessionID] == nil {
		cm.sessionConnections[sessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[sessionID][conn] = true

	if cm.byParticipant[sessionID] == nil {
		cm.byParticipant[sessionID] = make(map[string]*Connection)
	}
	// A reconnect supersedes any stale connection for the same
	// participant.
	if prev, ok := cm.byParticipant[sessionID][conn.ParticipantID]; ok && prev != conn {
		delete(cm.sessionConnections[sessionID], prev)
		prev.Conn.Close()
	}
	cm.byParticipant[sessionID][conn.ParticipantID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Str("session_id", sessionID.String()).
		Int("session_connections", len(cm.sessionConnections[sessionID])).
		Msg("connection bound to session")
}

// Unbind detaches a connection from its session pools.
func (cm *ConnectionManager) Unbind(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.unbindLocked(conn)
}

func (cm *ConnectionManager) unbindLocked(conn *Connection) {
	sessionID := conn.Session()
	if sessionID == uuid.Nil {
		return
	}
	if pool, ok := cm.sessionConnections[sessionID]; ok {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.sessionConnections, sessionID)
		}
	}
	if idx, ok := cm.byParticipant[sessionID]; ok {
		if idx[conn.ParticipantID] == conn {
			delete(idx, conn.ParticipantID)
		}
		if len(idx) == 0 {
			delete(cm.byParticipant, sessionID)
		}
	}
	conn.setSession(uuid.Nil)
}

// BroadcastToSession queues an event for every connection in the
// session.
func (cm *ConnectionManager) BroadcastToSession(sessionID uuid.UUID, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}
	select {
	case cm.broadcastCh <- broadcastMessage{SessionID: sessionID, Data: data, EventType: ev.Type}:
	default:
		log.Warn().Str("session_id", sessionID.String()).Msg("broadcast channel full, dropping message")
	}
}

// SendToParticipant delivers data directly to one participant's live
// connection. Returns false when the participant has none.
func (cm *ConnectionManager) SendToParticipant(sessionID uuid.UUID, participantID string, data []byte) bool {
	cm.mu.RLock()
	conn, ok := cm.byParticipant[sessionID][participantID]
	cm.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		log.Warn().
			Str("connection_id", conn.ID).
			Str("participant_id", participantID).
			Msg("connection send buffer full, closing connection")
		cm.dropConnection(conn)
		return false
	}
}

func (cm *ConnectionManager) handleBroadcast(message broadcastMessage) {
	cm.mu.RLock()
	pool, exists := cm.sessionConnections[message.SessionID]
	if !exists {
		cm.mu.RUnlock()
		return
	}
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		if message.ParticipantID != "" && conn.ParticipantID != message.ParticipantID {
			continue
		}
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range targets {
		select {
		case conn.Send <- message.Data:
		default:
			// Connection is slow or dead, close it.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("participant_id", conn.ParticipantID).
				Msg("connection send buffer full, closing connection")
			cm.dropConnection(conn)
		}
	}

	log.Debug().
		Str("event_type", string(message.EventType)).
		Str("session_id", message.SessionID.String()).
		Int("connections", len(targets)).
		Msg("event broadcast")
}

func (cm *ConnectionManager) dropConnection(conn *Connection) {
	cm.mu.Lock()
	cm.unbindLocked(conn)
	cm.mu.Unlock()
	conn.Conn.Close()
}

// Stats returns counters about active connections.
func (cm *ConnectionManager) Stats() (totalConnections, activeSessions int) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	for _, pool := range cm.sessionConnections {
		totalConnections += len(pool)
	}
	return totalConnections, len(cm.sessionConnections)
}

// writePump sends outbound messages and pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

// readPump reads inbound messages and hands them to the router.
func (c *Connection) readPump() {
	defer func() {
		if c.Manager.handler != nil {
			c.Manager.handler.HandleDisconnect(c)
		}
		c.Manager.Unbind(c)
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
					Msg("unexpected websocket close error")
			}
			break
		}
		if c.Manager.handler != nil {
			c.Manager.handler.HandleMessage(c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// SendJSON marshals v onto the connection's send queue.
func (c *Connection) SendJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal reply")
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().Str("connection_id", c.ID).Msg("reply dropped, send buffer full")
	}
}
