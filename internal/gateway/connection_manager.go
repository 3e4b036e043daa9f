package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"focusfriends/backend/internal/dashboard"
	"focusfriends/backend/internal/middleware"
)

// Config holds configuration for WebSocket connections
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
	}
}

// AllowOrigins accepts handshakes from the listed origins and from the
// server's own host. "*" accepts any origin. Requests without an Origin
// header are not from a browser and pass.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		allowed[strings.TrimSpace(origin)] = struct{}{}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := allowed["*"]; ok {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Session is the per-connection state driven by client messages.
type Session interface {
	DismissToast(id string)
	ClearToasts()
	Close()
}

// Opener builds the session for a new connection. Everything the session
// produces goes to sink.
type Opener func(ctx context.Context, userID string, sink dashboard.Sink) (Session, error)

// ConnectionManager upgrades authenticated requests and tracks the open
// connections.
type ConnectionManager struct {
	upgrader websocket.Upgrader
	config   Config
	open     Opener
	logger   *zap.Logger

	mu          sync.RWMutex
	connections map[*Connection]struct{}
	wg          sync.WaitGroup
}

// Connection is one client socket with its session.
type Connection struct {
	ID          string
	UserID      string
	ConnectedAt time.Time

	conn    *websocket.Conn
	manager *ConnectionManager
	session Session

	mu       sync.Mutex
	send     chan []byte
	sendDone bool
	once     sync.Once
}

type clientMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

const (
	clientDismissToast = "toast.dismiss"
	clientClearToasts  = "toast.clear"
)

func NewConnectionManager(config Config, open Opener, logger *zap.Logger) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectionManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		open:        open,
		logger:      logger.Named("gateway"),
		connections: make(map[*Connection]struct{}),
	}
}

// Handle is the gin handler for GET /ws. It expects the auth middleware to
// have set the user id.
func (cm *ConnectionManager) Handle(c *gin.Context) {
	userID := middleware.UserID(c)
	if err := cm.UpgradeConnection(c.Writer, c.Request, userID); err != nil {
		cm.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.NewString(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		conn:        conn,
		manager:     cm,
		send:        make(chan []byte, cm.config.SendBuffer),
	}
	cm.register(connection)

	cm.wg.Add(1)
	go connection.writePump()

	session, err := cm.open(r.Context(), userID, connection)
	if err != nil {
		cm.logger.Error("open dashboard", zap.String("user_id", userID), zap.Error(err))
		connection.shutdown()
		return nil
	}
	connection.session = session

	cm.wg.Add(1)
	go connection.readPump()

	cm.logger.Info("websocket connection established",
		zap.String("connection_id", connection.ID),
		zap.String("user_id", userID),
	)
	return nil
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// Shutdown closes every socket and waits for their pumps until ctx is done.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.mu.RLock()
	for connection := range cm.connections {
		connection.conn.Close()
	}
	cm.mu.RUnlock()

	drained := make(chan struct{})
	go func() {
		cm.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.connections[conn] = struct{}{}
}

func (cm *ConnectionManager) unregister(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.connections, conn)
}

// Send implements dashboard.Sink. A client that cannot keep up is
// disconnected.
func (c *Connection) Send(msg dashboard.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.manager.logger.Error("marshal message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendDone {
		return
	}
	select {
	case c.send <- data:
	default:
		c.manager.logger.Warn("connection send buffer full, closing connection",
			zap.String("connection_id", c.ID),
			zap.String("user_id", c.UserID),
		)
		c.closeSendLocked()
	}
}

func (c *Connection) closeSendLocked() {
	if !c.sendDone {
		c.sendDone = true
		close(c.send)
	}
}

// shutdown releases the session and the socket. It runs once, from
// whichever pump notices the connection is gone first.
func (c *Connection) shutdown() {
	c.once.Do(func() {
		c.manager.unregister(c)
		if c.session != nil {
			c.session.Close()
		}
		c.mu.Lock()
		c.closeSendLocked()
		c.mu.Unlock()
		c.conn.Close()

		c.manager.logger.Info("connection closed",
			zap.String("connection_id", c.ID),
			zap.String("user_id", c.UserID),
		)
	})
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.manager.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.logger.Debug("write message", zap.String("connection_id", c.ID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.manager.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.manager.logger.Debug("send ping", zap.String("connection_id", c.ID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.shutdown()
		c.manager.wg.Done()
	}()

	c.conn.SetReadLimit(c.manager.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn("unexpected websocket close", zap.String("connection_id", c.ID), zap.Error(err))
			}
			return
		}

		c.handleClientMessage(message)
		c.conn.SetReadDeadline(time.Now().Add(c.manager.config.ReadTimeout))
	}
}

func (c *Connection) handleClientMessage(message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.manager.logger.Debug("invalid client message", zap.String("connection_id", c.ID), zap.Error(err))
		return
	}

	switch msg.Type {
	case clientDismissToast:
		c.session.DismissToast(msg.ID)
	case clientClearToasts:
		c.session.ClearToasts()
	default:
		c.manager.logger.Debug("unknown client message",
			zap.String("connection_id", c.ID),
			zap.String("type", msg.Type),
		)
	}
}
