package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spritzapp/spritz/internal/db"
	"github.com/spritzapp/spritz/internal/errors"
	"github.com/spritzapp/spritz/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Note: Adjust this for production!
	},
}

// Manager fans ledger events out to connected dashboard clients.
type Manager struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client] = true
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client]; ok {
				delete(m.clients, client)
				client.Close()
			}
			m.mutex.Unlock()
		case message := <-m.broadcast:
			m.mutex.Lock()
			for client := range m.clients {
				err := client.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					logger.Error("Error broadcasting message: %v", err)
					client.Close()
					delete(m.clients, client)
				}
			}
			m.mutex.Unlock()
		}
	}
}

func (m *Manager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade connection: %v", err)
		http.Error(w, "Could not open websocket connection", http.StatusBadRequest)
		return
	}

	m.register <- conn

	go m.readPump(conn)
	go m.writePump(conn)
}

func (m *Manager) readPump(conn *websocket.Conn) {
	defer func() {
		m.unregister <- conn
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("Unexpected close error: %v", err)
			}
			break
		}
		// The feed is one-way; client messages are ignored.
	}
}

func (m *Manager) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) send(payload map[string]interface{}, operation string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &errors.WebSocketError{Operation: operation, Err: err}
	}

	m.broadcast <- data
	return nil
}

// BroadcastLogin announces a login to the dashboard feed.
func (m *Manager) BroadcastLogin(address string, isNewUser bool) error {
	return m.send(map[string]interface{}{
		"type":      "login",
		"address":   address,
		"isNewUser": isNewUser,
	}, "marshal login event")
}

// BroadcastPointsUpdate announces a change to a user's points balance.
func (m *Manager) BroadcastPointsUpdate(address string, points int64, reason string) error {
	return m.send(map[string]interface{}{
		"type":    "points_update",
		"address": address,
		"points":  points,
		"reason":  reason,
	}, "marshal points update")
}

// BroadcastInviteRedeemed announces a successful invite redemption.
func (m *Manager) BroadcastInviteRedeemed(inviter, redeemer string) error {
	return m.send(map[string]interface{}{
		"type":     "invite_redeemed",
		"inviter":  inviter,
		"redeemer": redeemer,
	}, "marshal invite event")
}

// BroadcastLeaderboard pushes a fresh leaderboard snapshot.
func (m *Manager) BroadcastLeaderboard(entries []db.LeaderboardEntry) error {
	leaderboard := make([]map[string]interface{}, len(entries))
	for i, entry := range entries {
		leaderboard[i] = map[string]interface{}{
			"address": entry.Address,
			"points":  entry.Points,
		}
	}
	return m.send(map[string]interface{}{
		"type":        "leaderboard_update",
		"leaderboard": leaderboard,
	}, "marshal leaderboard update")
}
