package services

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// FeedEvent is one entry on the live activity feed: an automation run,
// a watch renewal, a status change.
type FeedEvent struct {
	Type         string    `json:"type"`
	UserID       string    `json:"user_id,omitempty"`
	AutomationID uint      `json:"automation_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type feedClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan FeedEvent
	hub    *FeedHub
}

// FeedHub fans automation activity out to connected websocket clients.
// Events carrying a user id are delivered only to that user's connections.
type FeedHub struct {
	clients    map[string]*feedClient
	broadcast  chan FeedEvent
	register   chan *feedClient
	unregister chan *feedClient
	mutex      sync.RWMutex
}

var feedUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[string]*feedClient),
		broadcast:  make(chan FeedEvent, 64),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
	}
}

// Broadcast queues an event for delivery. Never blocks the dispatch path:
// if the hub is saturated the event is dropped.
func (h *FeedHub) Broadcast(event FeedEvent) {
	select {
	case h.broadcast <- event:
	default:
		logrus.Debug("feed broadcast queue full, dropping event")
	}
}

func (h *FeedHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			logrus.Debugf("feed client %s connected", client.id)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
				logrus.Debugf("feed client %s disconnected", client.id)
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			h.mutex.Lock()
			for _, client := range h.clients {
				if event.UserID != "" && client.userID != event.UserID {
					continue
				}
				select {
				case client.send <- event:
				default:
					close(client.send)
					delete(h.clients, client.id)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// HandleWebSocket upgrades the request and subscribes the connection to the
// authenticated user's feed. The feed is one-way: inbound frames are read
// only to keep the connection alive.
func (h *FeedHub) HandleWebSocket(c *gin.Context) {
	conn, err := feedUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := &feedClient{
		id:     fmt.Sprintf("client_%d", time.Now().UnixNano()),
		userID: c.GetString("user_id"),
		conn:   conn,
		send:   make(chan FeedEvent, 256),
		hub:    h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *feedClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Debugf("feed read error: %v", err)
			}
			break
		}
	}
}

func (c *feedClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				logrus.Debugf("feed write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
