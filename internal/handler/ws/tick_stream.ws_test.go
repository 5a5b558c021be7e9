package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelios/terminal-gateway/internal/entity"
	"github.com/avelios/terminal-gateway/internal/service/tickstream"
)

// newConnectedClient upgrades one real websocket pair and hands back the
// server-side client without starting its pumps.
func newConnectedClient(t *testing.T, registry *tickstream.Registry, queueSize int) (*Client, *websocket.Conn) {
	t.Helper()

	clientCh := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		clientCh <- newClient(conn, registry, queueSize)
	}))
	t.Cleanup(srv.Close)

	dial, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dial.Close() })

	return <-clientCh, dial
}

func tickFor(symbol string) entity.TickEvent {
	return entity.NewTickEvent(entity.Quote{
		Symbol: symbol,
		Bid:    decimal.NewFromFloat(1.0999),
		Ask:    decimal.NewFromFloat(1.1001),
	})
}

func TestClientEnqueueAfterClose(t *testing.T) {
	registry := tickstream.NewRegistry()
	client, _ := newConnectedClient(t, registry, 4)

	registry.Subscribe(client, "EURUSD")
	require.True(t, client.Enqueue(tickFor("EURUSD")))

	client.Close()

	assert.False(t, client.Enqueue(tickFor("EURUSD")), "closed client must reject deliveries")
	assert.Empty(t, registry.SubscribersOf("EURUSD"), "close must drop every subscription")

	// Close is idempotent.
	client.Close()
	assert.False(t, client.Enqueue(tickFor("EURUSD")))
}

func TestClientEnqueueFullQueue(t *testing.T) {
	registry := tickstream.NewRegistry()
	client, _ := newConnectedClient(t, registry, 1)

	assert.True(t, client.Enqueue(tickFor("EURUSD")))
	assert.False(t, client.Enqueue(tickFor("EURUSD")), "full queue must reject without blocking")
}

func TestTickStreamSubscribeFlow(t *testing.T) {
	registry := tickstream.NewRegistry()
	hub := tickstream.NewHub(registry, nil)

	mux := http.NewServeMux()
	NewTickStreamHandler(registry, 8).Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var greeting map[string]any
	require.NoError(t, conn.ReadJSON(&greeting))
	assert.Equal(t, entity.MessageTypeConnection, greeting["type"])

	require.NoError(t, conn.WriteJSON(entity.ControlMessage{Type: entity.MessageTypeSubscribe, Symbol: "EURUSD"}))

	var ack entity.SubscriptionEvent
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "subscribed", ack.Status)
	assert.Equal(t, "EURUSD", ack.Symbol)
	require.Len(t, registry.SubscribersOf("EURUSD"), 1)

	delivered := hub.Publish(entity.Quote{
		Symbol: "EURUSD",
		Bid:    decimal.NewFromFloat(1.1000),
		Ask:    decimal.NewFromFloat(1.1002),
	})
	assert.Equal(t, 1, delivered)

	var tick entity.TickEvent
	require.NoError(t, conn.ReadJSON(&tick))
	assert.Equal(t, entity.MessageTypeTick, tick.Type)
	assert.Equal(t, "EURUSD", tick.Data.Symbol)

	require.NoError(t, conn.WriteJSON(entity.ControlMessage{Type: entity.MessageTypePing}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, entity.MessageTypePong, pong["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "trade"}))
	var errEvent entity.ErrorEvent
	require.NoError(t, conn.ReadJSON(&errEvent))
	assert.Equal(t, entity.MessageTypeError, errEvent.Type)
}
