package realtime

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/proposta360/proposal-analytics/models"
)

// DefaultKeepAliveInterval is how often every connection receives a ping so
// proxies don't time the stream out. Override with KEEPALIVE_SECONDS.
const DefaultKeepAliveInterval = 30 * time.Second

// UnreadReplayLimit bounds the unread notifications replayed to a freshly
// opened connection.
const UnreadReplayLimit = 10

// connBuffer is the per-connection send queue. A connection that falls this
// far behind is treated as dead and pruned.
const connBuffer = 32

func KeepAliveInterval() time.Duration {
	if v := os.Getenv("KEEPALIVE_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return DefaultKeepAliveInterval
}

// Connection is one live push channel owned by a single user. The transport
// handler drains Messages and writes them to the wire; Done is closed when
// the hub drops the connection.
type Connection struct {
	userID int64
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func (c *Connection) Messages() <-chan []byte { return c.ch }
func (c *Connection) Done() <-chan struct{}   { return c.done }

func (c *Connection) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans messages out to every live connection of a target user. It is the
// only long-lived shared-memory component in the system; all map access
// happens under the mutex and writes to connections happen on snapshots, so
// a concurrent disconnect can never deadlock a push.
type Hub struct {
	mu          sync.RWMutex
	connections map[int64]map[*Connection]struct{}
	db          *sql.DB
}

func NewHub(db *sql.DB) *Hub {
	return &Hub{
		connections: make(map[int64]map[*Connection]struct{}),
		db:          db,
	}
}

// Connect registers a new push channel for a user. The new connection
// immediately receives a connected frame and a replay of the user's most
// recent unread notifications so a freshly opened dashboard is not empty.
func (h *Hub) Connect(userID int64) *Connection {
	conn := &Connection{
		userID: userID,
		ch:     make(chan []byte, connBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*Connection]struct{})
	}
	h.connections[userID][conn] = struct{}{}
	total := len(h.connections[userID])
	h.mu.Unlock()

	log.Printf("User %d connected for real-time notifications. Connections: %d", userID, total)

	h.send(conn, Frame("connected", map[string]interface{}{
		"message": "Connected to real-time notifications",
	}))
	h.replayUnread(userID, conn)

	return conn
}

// Disconnect removes one connection. Safe to call from both the normal close
// path and error paths; extra calls are no-ops. When the last connection of
// a user goes away the whole user entry is dropped.
func (h *Hub) Disconnect(userID int64, conn *Connection) {
	h.mu.Lock()
	if conns, ok := h.connections[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.connections, userID)
		}
	}
	h.mu.Unlock()

	conn.close()
}

// Push delivers data to every live connection of one user, best effort. A
// connection that cannot take the message is pruned without affecting the
// others. Per-connection ordering follows the order of Push calls.
func (h *Hub) Push(userID int64, data []byte) {
	h.mu.RLock()
	snapshot := make([]*Connection, 0, len(h.connections[userID]))
	for conn := range h.connections[userID] {
		snapshot = append(snapshot, conn)
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		h.send(conn, data)
	}
}

// PushNotification pushes a freshly created notification row.
func (h *Hub) PushNotification(userID int64, notification *models.Notification) {
	h.Push(userID, Frame("notification", map[string]interface{}{
		"notification": notification,
	}))
}

// PushInteraction pushes a raw interaction ping so open dashboards can
// update the live activity feed without polling.
func (h *Hub) PushInteraction(userID int64, event *models.InteractionEvent, visitorName string) {
	h.Push(userID, Frame("interaction", map[string]interface{}{
		"event":       event,
		"visitorName": visitorName,
	}))
}

// Broadcast sends to every connection of every user. Only used for
// system-wide signals like keep-alive pings.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	snapshot := make([]*Connection, 0)
	for _, conns := range h.connections {
		for conn := range conns {
			snapshot = append(snapshot, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range snapshot {
		h.send(conn, data)
	}
}

// StartKeepAlive pings every connection on a fixed interval until the
// context is cancelled. Clients treat repeated missed pings as a lost
// connection and reconnect.
func (h *Hub) StartKeepAlive(ctx context.Context) {
	interval := KeepAliveInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.Broadcast(Frame("ping", nil))
			}
		}
	}()
}

// ConnectionStats reports the registry size for diagnostics.
func (h *Hub) ConnectionStats() (connectedUsers, totalConnections int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.connections {
		totalConnections += len(conns)
	}
	return len(h.connections), totalConnections
}

// send queues data for one connection without ever blocking. A full buffer
// means the reader is gone or stuck, so the connection is pruned.
func (h *Hub) send(conn *Connection, data []byte) {
	select {
	case <-conn.done:
	case conn.ch <- data:
	default:
		log.Printf("Dropping slow connection for user %d", conn.userID)
		h.Disconnect(conn.userID, conn)
	}
}

func (h *Hub) replayUnread(userID int64, conn *Connection) {
	if h.db == nil {
		return
	}

	rows, err := h.db.Query(`
		SELECT id, user_id, proposal_id, type, title, message, read, sent_email, sent_whatsapp, created_at
		FROM notifications
		WHERE user_id = $1 AND read = false
		ORDER BY created_at DESC
		LIMIT $2`,
		userID, UnreadReplayLimit,
	)
	if err != nil {
		log.Println("Error loading unread notifications:", err)
		return
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		var proposalID sql.NullInt64
		err = rows.Scan(&n.ID, &n.UserID, &proposalID, &n.Type, &n.Title, &n.Message,
			&n.Read, &n.SentEmail, &n.SentWhatsApp, &n.CreatedAt)
		if err != nil {
			log.Println("Error scanning unread notification:", err)
			return
		}
		if proposalID.Valid {
			n.ProposalID = &proposalID.Int64
		}
		notifications = append(notifications, n)
	}

	if len(notifications) == 0 {
		return
	}

	h.send(conn, Frame("unread_notifications", map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
	}))
}

// Frame builds one JSON push frame with the shared envelope fields.
func Frame(frameType string, fields map[string]interface{}) []byte {
	payload := map[string]interface{}{
		"type":      frameType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Println("Error marshalling push frame:", err)
		return []byte(`{"type":"error"}`)
	}
	return data
}
