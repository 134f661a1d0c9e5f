package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"wager-ledger-backend/internal/middleware"
	"wager-ledger-backend/internal/models"
	"wager-ledger-backend/internal/services"
)

const (
	MessageBalanceUpdate = "BALANCE_UPDATE"
	MessagePing          = "PING"
	MessagePong          = "PONG"

	writeWait      = 10 * time.Second
	clientSendSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type     string `json:"type"`
	PlayerID string `json:"player_id,omitempty"`
	Data     any    `json:"data,omitempty"`

	target *Client
}

type Client struct {
	PlayerID string
	conn     *websocket.Conn
	send     chan *Message
}

// WebSocketHub fans balance changes out to the connected clients of each
// player. It implements services.Broadcaster.
type WebSocketHub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client.
func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)

	for {
		select {
		case <-ctx.Done():
			for _, set := range hub.clients {
				for client := range set {
					close(client.send)
				}
			}
			hub.clients = make(map[string]map[*Client]struct{})
			return

		case client := <-hub.register:
			set, ok := hub.clients[client.PlayerID]
			if !ok {
				set = make(map[*Client]struct{})
				hub.clients[client.PlayerID] = set
			}
			set[client] = struct{}{}
			log.WithField("player_id", client.PlayerID).Debug("WebSocket client registered")

		case client := <-hub.unregister:
			hub.remove(client)

		case message := <-hub.broadcast:
			for client := range hub.clients[message.PlayerID] {
				if message.target != nil && message.target != client {
					continue
				}
				select {
				case client.send <- message:
				default:
					// Too slow to keep up; it reconnects and reads a fresh balance.
					hub.remove(client)
				}
			}
		}
	}
}

func (hub *WebSocketHub) remove(client *Client) {
	set, ok := hub.clients[client.PlayerID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}

	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(hub.clients, client.PlayerID)
	}
	log.WithField("player_id", client.PlayerID).Debug("WebSocket client unregistered")
}

// BalanceChanged queues a BALANCE_UPDATE for playerID. It never blocks the
// caller; updates are dropped when the hub is saturated.
func (hub *WebSocketHub) BalanceChanged(playerID string, balance decimal.Decimal, reason models.TransactionType) {
	msg := balanceMessage(playerID, balance, reason)

	select {
	case hub.broadcast <- msg:
	default:
		log.WithField("player_id", playerID).Warn("WebSocket broadcast queue full, dropping update")
	}
}

func balanceMessage(playerID string, balance decimal.Decimal, reason models.TransactionType) *Message {
	data := gin.H{
		"balance":   balance,
		"timestamp": time.Now().Unix(),
	}
	if reason != "" {
		data["reason"] = reason
	}

	return &Message{
		Type:     MessageBalanceUpdate,
		PlayerID: playerID,
		Data:     data,
	}
}

var _ services.Broadcaster = (*WebSocketHub)(nil)

type WebSocketHandler struct {
	players *services.PlayerStore
	hub     *WebSocketHub
}

func NewWebSocketHandler(players *services.PlayerStore, hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		players: players,
		hub:     hub,
	}
}

// HandleWebSocket streams balance updates for an existing player.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	playerID := middleware.PlayerID(c)
	if playerID == "" {
		badRequest(c, "playerId is required")
		return
	}

	player, err := h.players.Get(c.Request.Context(), playerID)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		PlayerID: player.ID,
		conn:     conn,
		send:     make(chan *Message, clientSendSize),
	}

	// Queued before registering so it is the first frame the client reads.
	client.send <- balanceMessage(player.ID, player.Balance, "")
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()

	defer func() {
		select {
		case h.hub.unregister <- client:
		case <-h.hub.done:
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithField("player_id", player.ID).WithError(err).Warn("WebSocket read error")
			}
			return
		}

		if msg.Type == MessagePing {
			h.hub.reply(client, &Message{
				Type: MessagePong,
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
		}
	}
}

// reply routes a response to one client through the hub so that only
// writePump writes to the connection.
func (hub *WebSocketHub) reply(client *Client, msg *Message) {
	msg.PlayerID = client.PlayerID
	msg.target = client
	select {
	case hub.broadcast <- msg:
	default:
	}
}

func (client *Client) writePump() {
	defer client.conn.Close()

	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
