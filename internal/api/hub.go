package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/opd-ai/toxcall"
	"github.com/sirupsen/logrus"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
)

// client is one websocket subscriber. Events are written by its own
// goroutine so a slow reader never stalls the hub.
type client struct {
	id   string
	conn *websocket.Conn
	send chan toxcall.Event
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan toxcall.Event, clientBuffer),
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()

	for ev := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(ev); err != nil {
			logrus.WithFields(logrus.Fields{
				"function":  "client.writeLoop",
				"client_id": c.id,
				"error":     err.Error(),
			}).Debug("Websocket write failed")
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
}

// Hub fans coordinator events out to websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan toxcall.Event
	register   chan *client
	unregister chan *client
	count      chan chan int
	quit       chan struct{}
	done       chan struct{}
}

// NewHub creates a Hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan toxcall.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		count:      make(chan chan int),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until Stop is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			logrus.WithFields(logrus.Fields{
				"function":  "Hub.Run",
				"client_id": c.id,
			}).Info("Event client registered")

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				logrus.WithFields(logrus.Fields{
					"function":  "Hub.Run",
					"client_id": c.id,
				}).Info("Event client unregistered")
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					logrus.WithFields(logrus.Fields{
						"function":  "Hub.Run",
						"client_id": c.id,
					}).Warn("Event client too slow, disconnecting")
					delete(h.clients, c)
					close(c.send)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Broadcast queues ev for every client. It never blocks; events are dropped
// when the hub is backed up.
func (h *Hub) Broadcast(ev toxcall.Event) {
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Hub.Broadcast",
			"kind":     ev.Kind,
		}).Warn("Broadcast channel full, dropping event")
	}
}

func (h *Hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Stop disconnects all clients and ends Run.
func (h *Hub) Stop() {
	close(h.quit)
	<-h.done
}
