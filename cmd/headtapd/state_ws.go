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
// Feedback WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// Overlay and companion UIs subscribe here to learn when a button fired (so its
// icon can be dimmed), when it should be restored, and when targets change.
//
//   - A Hub tracks connected clients; one slow client never blocks the others.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//   - The first message on connect is "state_init" with the current targets and
//     counters, requested through the daemon loop.
//
// ============================================================================

// wsButtonState describes one button in "state_init".
type wsButtonState struct {
	Button int  `json:"button"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Set    bool `json:"set"`
}

// wsMessageSnapshot is the JSON `data` payload for the WS "state_init" event.
type wsMessageSnapshot struct {
	Buttons      []wsButtonState `json:"buttons"`
	TargetsKnown bool            `json:"targets_known"`
	Pending      int             `json:"pending_presses"`
	Stats        wsStats         `json:"stats"`
}

type wsStats struct {
	Presses      uint64 `json:"presses"`
	Primary      uint64 `json:"primary"`
	Secondary    uint64 `json:"secondary"`
	Taps         uint64 `json:"taps"`
	SkippedUnset uint64 `json:"skipped_unset"`
	TapFailures  uint64 `json:"tap_failures"`
}

// wsClickClassifiedData is the JSON `data` payload for "click_classified".
type wsClickClassifiedData struct {
	Action  string `json:"action"`
	Button  int    `json:"button"`
	Presses int    `json:"presses,omitempty"`
}

// wsButtonTriggeredData is the JSON `data` payload for "button_triggered".
type wsButtonTriggeredData struct {
	Button int   `json:"button"`
	X      int   `json:"x"`
	Y      int   `json:"y"`
	DimMS  int64 `json:"dim_ms"`
}

// wsButtonData is the JSON `data` payload for "button_restored".
type wsButtonData struct {
	Button int `json:"button"`
}

// wsTargetChangedData is the JSON `data` payload for "target_changed".
type wsTargetChangedData struct {
	Button int  `json:"button"`
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Set    bool `json:"set"`
}

// wsTapFailedData is the JSON `data` payload for "tap_failed".
type wsTapFailedData struct {
	Button int    `json:"button"`
	Error  string `json:"error"`
}

// wsOutboundEvent is a pre-typed, externally-consumable feedback event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means "use now"
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
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
	// SendBuf is the per-client outbound queue size (default 32).
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size (default 128).
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
	h.logger.Debug("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			if c.closed {
				// Unregistered before its registration was processed.
				h.mu.Unlock()
				continue
			}
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
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

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		h.closeSendLocked(c)
		delete(h.clients, c)
	}
}

// closeSendLocked closes c.send once. Callers hold h.mu.
func (h *Hub) closeSendLocked(c *Client) bool {
	if c.closed {
		return false
	}
	c.closed = true
	// Closing send signals writePump to exit.
	close(c.send)
	return true
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, registered := h.clients[c]
	delete(h.clients, c)
	closed := h.closeSendLocked(c)
	n := len(h.clients)
	h.mu.Unlock()

	if closed && c.conn != nil {
		_ = c.conn.Close()
	}
	if registered {
		h.logger.Info("ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// sendTo queues msg for a single client without blocking. It reports false
// when the client is already closed or its queue is full.
func (h *Hub) sendTo(c *Client, msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
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

	// closed is set once send is closed. Guarded by hub.mu.
	closed bool

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
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Debug("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Debug("ws "+pump+" exiting", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and handle
// control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler
// ============================================================================

type FeedbackServer struct {
	logger *slog.Logger
	hub    *Hub

	// Used to request the initial snapshot through the daemon loop.
	events chan<- Event
}

// NewFeedbackServer constructs the WS feedback server. Register it on a mux and
// start Hub().Run(ctx) plus RunBroadcaster.
func NewFeedbackServer(logger *slog.Logger, events chan<- Event, cfg HubConfig) *FeedbackServer {
	return &FeedbackServer{
		logger: logger,
		hub:    NewHub(logger, cfg),
		events: events,
	}
}

func (s *FeedbackServer) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *FeedbackServer) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleFeedbackWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleFeedbackWS upgrades and registers a client, then sends state_init.
func (s *FeedbackServer) handleFeedbackWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	s.hub.register <- client

	// Pump lifetime is managed by the hub and by websocket errors, not by the
	// request context (net/http cancels it when this handler returns).
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	snap, err := requestSnapshot(r.Context(), s.events, time.Second)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", err)
		}
		return
	}

	initMsg, err := marshalEnvelope(wsOutboundEvent{Type: "state_init", Data: snapshotPayload(snap)})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return
	}
	if !s.hub.sendTo(client, initMsg) {
		s.hub.unregister <- client
	}
}

// requestSnapshot asks the daemon loop for a StateSnapshot.
func requestSnapshot(ctx context.Context, events chan<- Event, timeout time.Duration) (StateSnapshot, error) {
	if _, has := ctx.Deadline(); !has {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case events <- RequestStateSnapshot{Reply: reply}:
	}

	select {
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	case snap := <-reply:
		return snap, nil
	}
}

func snapshotPayload(snap StateSnapshot) wsMessageSnapshot {
	buttons := make([]wsButtonState, 0, 2)
	for _, n := range []int{buttonPrimary, buttonSecondary} {
		t, _ := snap.Targets.Get(n)
		buttons = append(buttons, wsButtonState{Button: n, X: t.X, Y: t.Y, Set: t.IsSet()})
	}
	return wsMessageSnapshot{
		Buttons:      buttons,
		TargetsKnown: snap.TargetsKnown,
		Pending:      snap.Pending,
		Stats: wsStats{
			Presses:      snap.Stats.Presses,
			Primary:      snap.Stats.Primary,
			Secondary:    snap.Stats.Secondary,
			Taps:         snap.Stats.Taps,
			SkippedUnset: snap.Stats.SkippedUnset,
			TapFailures:  snap.Stats.TapFailures,
		},
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads reducer-emitted broadcasts, marshals them and fans them
// out to hub clients. It also emits "button_restored" once a triggered button's
// dim period is over; re-triggering a dimmed button extends the period.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	// Restore deadline per dimmed button, served by a single timer set to the
	// earliest deadline.
	dimmed := make(map[int]time.Time)
	var restoreTimer *time.Timer
	var restoreC <-chan time.Time

	stopRestoreTimer := func() {
		if restoreTimer == nil {
			restoreC = nil
			return
		}
		if !restoreTimer.Stop() {
			select {
			case <-restoreTimer.C:
			default:
			}
		}
		restoreTimer = nil
		restoreC = nil
	}

	rearm := func(now time.Time) {
		stopRestoreTimer()
		var next time.Time
		for _, d := range dimmed {
			if next.IsZero() || d.Before(next) {
				next = d
			}
		}
		if next.IsZero() {
			return
		}
		restoreTimer = time.NewTimer(next.Sub(now))
		restoreC = restoreTimer.C
	}

	restoreDue := func(now time.Time) {
		for button, d := range dimmed {
			if !d.After(now) {
				delete(dimmed, button)
				send(wsOutboundEvent{Type: "button_restored", Data: wsButtonData{Button: button}, At: now})
			}
		}
	}

	restoreAll := func() {
		for button := range dimmed {
			send(wsOutboundEvent{Type: "button_restored", Data: wsButtonData{Button: button}})
		}
		clear(dimmed)
		stopRestoreTimer()
	}

	for {
		select {
		case <-ctx.Done():
			restoreAll()
			return

		case now := <-restoreC:
			restoreTimer = nil
			restoreC = nil
			restoreDue(now)
			rearm(now)

		case b, ok := <-src:
			if !ok {
				restoreAll()
				logger.Debug("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}
			send(ev)

			if trig, isTrig := b.(BroadcastButtonTriggered); isTrig && trig.DimFor > 0 {
				now := time.Now()
				dimmed[trig.Button] = now.Add(trig.DimFor)
				rearm(now)
			}
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastClickClassified:
		return wsOutboundEvent{
			Type: "click_classified",
			Data: wsClickClassifiedData{Action: ev.Action.String(), Button: ev.Action.Button(), Presses: ev.Presses},
			At:   ev.At,
		}, true

	case BroadcastButtonTriggered:
		return wsOutboundEvent{
			Type: "button_triggered",
			Data: wsButtonTriggeredData{Button: ev.Button, X: ev.X, Y: ev.Y, DimMS: ev.DimFor.Milliseconds()},
			At:   ev.At,
		}, true

	case BroadcastTargetChanged:
		return wsOutboundEvent{
			Type: "target_changed",
			Data: wsTargetChangedData{Button: ev.Button, X: ev.Target.X, Y: ev.Target.Y, Set: ev.Target.IsSet()},
			At:   ev.At,
		}, true

	case BroadcastTapFailed:
		return wsOutboundEvent{
			Type: "tap_failed",
			Data: wsTapFailedData{Button: ev.Button, Error: ev.Error},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
