// Package ws exposes the tick stream over a websocket endpoint. Each
// connection is one consumer: it subscribes to symbols with control messages
// and receives tick events pushed as they are detected.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/tickstream"
)

const (
	defaultSendQueueSize = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct {
	registry  *tickstream.Registry
	queueSize int
}

func NewTickStreamHandler(registry *tickstream.Registry, queueSize int) *Handler {
	if queueSize <= 0 {
		queueSize = defaultSendQueueSize
	}

	return &Handler{
		registry:  registry,
		queueSize: queueSize,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.Serve)
}

func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("websocket upgrade failed: %v", err)
		return
	}

	client := newClient(conn, h.registry, h.queueSize)

	logrus.WithFields(logrus.Fields{
		"client":      client.ID(),
		"remote_addr": r.RemoteAddr,
	}).Info("websocket client connected")

	go client.writePump()
	client.readPump()
}

// Client is one websocket connection acting as a tick consumer. Delivery goes
// through a bounded send queue; when the queue is full the hub drops the tick
// and asks for the client to be disconnected.
type Client struct {
	id       string
	conn     *websocket.Conn
	registry *tickstream.Registry

	closeOnce sync.Once
	send      chan []byte
	done      chan struct{}
}

var _ tickstream.Consumer = (*Client)(nil)

func newClient(conn *websocket.Conn, registry *tickstream.Registry, queueSize int) *Client {
	return &Client{
		id:       uuid.NewString(),
		conn:     conn,
		registry: registry,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Enqueue implements tickstream.Consumer. It never blocks: a full queue or a
// closed client reports false and the caller drops the tick.
func (c *Client) Enqueue(event entity.TickEvent) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		logrus.Errorf("failed to encode tick event: %v", err)
		return true
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close tears the client down: drops every subscription, stops the pumps and
// closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.registry.DropConsumer(c)
		_ = c.conn.Close()

		logrus.WithField("client", c.id).Info("websocket client disconnected")
	})
}

func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	if err := c.sendJSON(map[string]any{
		"type":   entity.MessageTypeConnection,
		"status": "connected",
		"client": c.id,
	}); err != nil {
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logrus.WithField("client", c.id).Warnf("websocket read failed: %v", err)
			}
			return
		}

		msg, err := entity.ParseControlMessage(raw)
		if err != nil {
			_ = c.sendJSON(entity.ErrorEvent{Type: entity.MessageTypeError, Message: err.Error()})
			continue
		}

		c.handleControl(msg)
	}
}

func (c *Client) handleControl(msg entity.ControlMessage) {
	switch msg.Type {
	case entity.MessageTypeSubscribe:
		c.registry.Subscribe(c, msg.Symbol)
		_ = c.sendJSON(entity.SubscriptionEvent{
			Type:   entity.MessageTypeSubscription,
			Symbol: msg.Symbol,
			Status: "subscribed",
		})
	case entity.MessageTypeUnsubscribe:
		c.registry.Unsubscribe(c, msg.Symbol)
		_ = c.sendJSON(entity.SubscriptionEvent{
			Type:   entity.MessageTypeSubscription,
			Symbol: msg.Symbol,
			Status: "unsubscribed",
		})
	case entity.MessageTypePing:
		_ = c.sendJSON(map[string]string{"type": entity.MessageTypePong})
	}
}

func (c *Client) sendJSON(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case c.send <- raw:
		return nil
	case <-c.done:
		return websocket.ErrCloseSent
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
