package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that fans input-bus events and playback snapshots
//     out to every client
//
// Constraints:
//   - The bus consumer and the audio control loop stay single-owner; the WS
//     layer only sees bus observer copies and snapshot replies.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The initial message on connect is "state_init" with a full snapshot.
// ============================================================================

// StateSnapshot is the JSON `data` payload for the WS "state_init" event and
// for periodic "state" refreshes.
type StateSnapshot struct {
	Session PlaybackSession `json:"session"`
	Wheel   WheelStatus     `json:"wheel"`
	Bus     BusStats        `json:"bus"`
}

// SnapshotFunc assembles a StateSnapshot on demand.
type SnapshotFunc func(ctx context.Context) (StateSnapshot, error)

// wsEnvelope is the wire format envelope for WS messages.
type wsEnvelope struct {
	Type string      `json:"type"`
	Ts   *time.Time  `json:"ts,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Avoid mutating the clients map while ranging over it.
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		// Guard against double-close by recovering (best-effort).
		safeCloseChan(c.send)

		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait = 5 * time.Second

	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsWheelCoalesceWindow is the maximum window during which bursty wheel
// events are coalesced (latest-wins) before broadcasting to clients.
const wsWheelCoalesceWindow = 50 * time.Millisecond

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("ws writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Info("ws writePump exiting (write error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					if code, text, ok := closeStatus(err); ok {
						c.logger.Info("ws writePump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
					} else {
						c.logger.Info("ws writePump exiting (ping error)", "remote_addr", c.remoteAddr, "error", err)
					}
				}
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and handle control frames.
// It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Continue to read.
		}

		_, _, err := c.conn.ReadMessage()
		if err != nil {
			// Normal close is expected on client disconnect.
			if !errors.Is(err, websocket.ErrCloseSent) {
				if code, text, ok := closeStatus(err); ok {
					c.logger.Info("ws readPump exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
				} else {
					c.logger.Info("ws readPump exiting (read error)", "remote_addr", c.remoteAddr, "error", err)
				}
			}

			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot on connect.
	snapshot SnapshotFunc
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a mux,
// start hub.Run(ctx), and start the broadcaster loop.
func NewServer(logger *slog.Logger, snapshot SnapshotFunc, cfg ServerConfig) *Server {
	hub := NewHub(logger, cfg.Hub)
	return &Server{
		logger:   logger,
		hub:      hub,
		snapshot: snapshot,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	// NOTE: If you need stricter origin checks, implement them at integration time.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Start pumps.
	//
	// IMPORTANT:
	// Do not tie the pumps to the HTTP request context (r.Context()).
	// net/http cancels the request context when the handler returns, which would
	// prematurely stop the pumps and cause abnormal WS closures (e.g. code 1006).
	// The connection lifetime is instead managed by the hub (close/unregister) and
	// by the websocket read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.snapshot == nil {
		return
	}

	// Use the HTTP request context for the snapshot round-trip so it cancels
	// if the client disconnects while we wait.
	waitCtx := r.Context()
	if _, has := waitCtx.Deadline(); !has {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(waitCtx, 1*time.Second)
		defer cancel()
	}

	snap, err := s.snapshot(waitCtx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	now := time.Now().UTC()
	initMsg, mErr := json.Marshal(wsEnvelope{
		Type: "state_init",
		Ts:   &now,
		Data: snap,
	})
	if mErr == nil {
		// Enqueue init message; if client is already slow, disconnect.
		select {
		case client.send <- initMsg:
		default:
			s.hub.unregister <- client
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster fans input-bus events out to all hub clients. Wheel motion
// arrives at up to the sampling rate, so it is rate-limited: the latest
// pending wheel event is flushed at most once per coalesce window. Button and
// system events are forwarded immediately. Intended to run as a single
// goroutine.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan InputEvent, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingWheel *InputEvent
	var wheelTimer *time.Timer
	var wheelTimerCh <-chan time.Time

	flushPendingWheel := func() {
		if pendingWheel == nil {
			return
		}
		msg, err := MarshalInputEvent(*pendingWheel)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err)
			pendingWheel = nil
			return
		}
		hub.BroadcastBytes(msg)
		pendingWheel = nil
	}

	stopWheelTimer := func() {
		if wheelTimer == nil {
			wheelTimerCh = nil
			return
		}
		if !wheelTimer.Stop() {
			select {
			case <-wheelTimer.C:
			default:
			}
		}
		wheelTimerCh = nil
		wheelTimer = nil
	}

	startWheelTimerIfNeeded := func() {
		if wheelTimer != nil {
			return
		}
		wheelTimer = time.NewTimer(wsWheelCoalesceWindow)
		wheelTimerCh = wheelTimer.C
	}

	resetWheelTimer := func() {
		if wheelTimer == nil {
			return
		}
		if !wheelTimer.Stop() {
			select {
			case <-wheelTimer.C:
			default:
			}
		}
		wheelTimer.Reset(wsWheelCoalesceWindow)
		wheelTimerCh = wheelTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			// Best-effort: flush pending wheel event before exit.
			flushPendingWheel()
			stopWheelTimer()
			return

		case <-wheelTimerCh:
			flushPendingWheel()
			if pendingWheel == nil {
				stopWheelTimer()
			} else {
				resetWheelTimer()
			}

		case ev, ok := <-src:
			if !ok {
				flushPendingWheel()
				stopWheelTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			// Rate-limit only wheel motion; do NOT reset the timer on each
			// update. Latest-wins: taps pass through immediately.
			if w, isWheel := ev.Payload.(WheelEvent); isWheel && !w.Tap {
				copyEv := ev
				pendingWheel = &copyEv
				startWheelTimerIfNeeded()
				continue
			}

			// Non-wheel event: flush pending wheel first, then emit this
			// event immediately so ordering stays sane for clients.
			flushPendingWheel()
			stopWheelTimer()

			msg, err := MarshalInputEvent(ev)
			if err != nil {
				logger.Warn("ws broadcaster marshal failed", "error", err)
				continue
			}
			hub.BroadcastBytes(msg)
		}
	}
}

// BroadcastSnapshot serializes and broadcasts a full state snapshot.
func BroadcastSnapshot(hub *Hub, snap StateSnapshot) {
	now := time.Now().UTC()
	msg, err := json.Marshal(wsEnvelope{Type: "state", Ts: &now, Data: snap})
	if err != nil {
		return
	}
	hub.BroadcastBytes(msg)
}
