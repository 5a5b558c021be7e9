// Package terminal drives the single trading-terminal session over a
// JSON-RPC websocket bridge. It is the only component that talks to the
// terminal; everything else reaches it through entity.SessionGateway behind
// the session gate.
package terminal

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/avelios/terminal-gateway/internal/config"
	"github.com/avelios/terminal-gateway/internal/entity"
)

const (
	defaultCallTimeout      = 10 * time.Second
	bridgeReconnectMinDelay = 1 * time.Second
	bridgeReconnectMaxDelay = 15 * time.Second
	bridgeReconnectFactor   = 2.0
	bridgePingInterval      = 2 * time.Minute
)

type BridgeDriver struct {
	bridgeURL   *url.URL
	callTimeout time.Duration

	reconnectFactor float64
	minJitter       time.Duration
	maxJitter       time.Duration

	connected atomic.Bool
	nextID    atomic.Uint64

	writeMu sync.Mutex
	conn    *websocket.Conn

	pendingMu sync.Mutex
	pending   map[uint64]chan bridgeResponse
}

func NewBridgeDriver(cfg config.TerminalConfig) (*BridgeDriver, error) {
	bridgeURL, err := url.Parse(cfg.BridgeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid terminal bridge url: %w", err)
	}

	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	reconnectFactor := cfg.ReconnectFactor
	if reconnectFactor < 1 {
		reconnectFactor = bridgeReconnectFactor
	}

	minJitter := cfg.MinJitter
	if minJitter <= 0 {
		minJitter = bridgeReconnectMinDelay
	}

	maxJitter := cfg.MaxJitter
	if maxJitter < minJitter {
		maxJitter = bridgeReconnectMaxDelay
	}

	return &BridgeDriver{
		bridgeURL:       bridgeURL,
		callTimeout:     callTimeout,
		reconnectFactor: reconnectFactor,
		minJitter:       minJitter,
		maxJitter:       maxJitter,
		pending:         make(map[uint64]chan bridgeResponse),
	}, nil
}

// Run maintains the bridge connection until ctx is cancelled, reconnecting
// with exponential backoff and jitter. Calls made while disconnected fail
// fast with ErrUpstreamUnavailable.
func (d *BridgeDriver) Run(ctx context.Context) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		logrus.Infof("connecting to terminal bridge %s", d.bridgeURL.String())
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.bridgeURL.String(), nil)
		if err != nil {
			wait := d.reconnectDelay(attempt, rng)
			attempt++
			logrus.WithFields(logrus.Fields{
				"retry_in": wait.String(),
				"attempt":  attempt,
			}).Warnf("terminal bridge dial failed: %v", err)

			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return
			}
		}

		attempt = 0
		conn.SetPongHandler(func(string) error { return nil })

		d.writeMu.Lock()
		d.conn = conn
		d.writeMu.Unlock()
		d.connected.Store(true)
		logrus.Info("terminal bridge connected")

		stopPing := make(chan struct{})
		go d.pingLoop(ctx, conn, stopPing)

		go func(c *websocket.Conn) {
			select {
			case <-ctx.Done():
				_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = c.Close()
			case <-stopPing:
			}
		}(conn)

		d.readLoop(ctx, conn)

		d.connected.Store(false)
		close(stopPing)
		_ = conn.Close()
		d.failPending()

		if ctx.Err() != nil {
			return
		}

		wait := d.reconnectDelay(attempt, rng)
		attempt++
		logrus.WithFields(logrus.Fields{
			"retry_in": wait.String(),
			"attempt":  attempt,
		}).Warn("reconnecting terminal bridge")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (d *BridgeDriver) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(bridgePingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.writeMu.Lock()
			err := conn.WriteMessage(websocket.PingMessage, nil)
			d.writeMu.Unlock()
			if err != nil {
				logrus.Error(err)
				return
			}
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

func (d *BridgeDriver) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logrus.Errorf("terminal bridge read failed: %v", err)
			}
			return
		}

		var resp bridgeResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			logrus.Errorf("terminal bridge sent invalid frame: %v", err)
			continue
		}

		d.pendingMu.Lock()
		ch, ok := d.pending[resp.ID]
		if ok {
			delete(d.pending, resp.ID)
		}
		d.pendingMu.Unlock()

		if !ok {
			logrus.Warnf("terminal bridge response for unknown call id %d", resp.ID)
			continue
		}

		ch <- resp
	}
}

// failPending unblocks every in-flight call after a disconnect.
func (d *BridgeDriver) failPending() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	for id, ch := range d.pending {
		delete(d.pending, id)
		ch <- bridgeResponse{ID: id, Error: &bridgeError{Code: codeUpstreamDown, Message: "bridge disconnected"}}
	}
}

func (d *BridgeDriver) reconnectDelay(attempt int, rng *rand.Rand) time.Duration {
	backoff := float64(d.minJitter)
	for i := 0; i < attempt; i++ {
		backoff *= d.reconnectFactor
		if backoff >= float64(d.maxJitter) {
			backoff = float64(d.maxJitter)
			break
		}
	}

	base := time.Duration(backoff)
	if d.maxJitter <= d.minJitter {
		return base
	}

	jitter := time.Duration(rng.Int63n(int64(d.minJitter) + 1))
	if base+jitter > d.maxJitter {
		return d.maxJitter
	}

	return base + jitter
}

func (d *BridgeDriver) call(ctx context.Context, method string, params any, result any) error {
	if !d.connected.Load() {
		return entity.ErrUpstreamUnavailable
	}

	id := d.nextID.Add(1)

	payload, err := json.Marshal(bridgeRequest{ID: id, Method: method, Params: params})
	if err != nil {
		return err
	}

	ch := make(chan bridgeResponse, 1)
	d.pendingMu.Lock()
	d.pending[id] = ch
	d.pendingMu.Unlock()

	d.writeMu.Lock()
	conn := d.conn
	if conn == nil {
		d.writeMu.Unlock()
		d.dropPending(id)
		return entity.ErrUpstreamUnavailable
	}
	err = conn.WriteMessage(websocket.TextMessage, payload)
	d.writeMu.Unlock()
	if err != nil {
		d.dropPending(id)
		return entity.ErrUpstreamUnavailable
	}

	timer := time.NewTimer(d.callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error.toDomain(method)
		}
		if result == nil {
			return nil
		}
		return json.Unmarshal(resp.Result, result)
	case <-timer.C:
		d.dropPending(id)
		return fmt.Errorf("%w: call %s timed out", entity.ErrUpstreamUnavailable, method)
	case <-ctx.Done():
		d.dropPending(id)
		return ctx.Err()
	}
}

func (d *BridgeDriver) dropPending(id uint64) {
	d.pendingMu.Lock()
	delete(d.pending, id)
	d.pendingMu.Unlock()
}
