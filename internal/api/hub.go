package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"nifty-signals/internal/logger"
	"nifty-signals/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Envelope is one websocket message carrying a persisted batch.
type Envelope struct {
	Type    string      `json:"type"`
	Seq     int64       `json:"seq"`
	CycleID string      `json:"cycle_id"`
	TS      time.Time   `json:"ts"`
	Signals []SignalDTO `json:"signals"`
	Replay  bool        `json:"replay,omitempty"`
}

// Hub fans persisted signal batches out to websocket clients. It satisfies
// the analysis publisher contract.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	seq     int64

	replay   *ReplayBuffer
	upgrader websocket.Upgrader
	log      *slog.Logger
	now      func() time.Time
}

// NewHub creates a hub that keeps the last replaySize batches for catch-up.
func NewHub(replaySize int) *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		replay:  NewReplayBuffer(replaySize),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: logger.Component("api"),
		now: time.Now,
	}
}

// Publish broadcasts one batch. Slow clients whose buffers are full miss
// the message and can recover it through the replay buffer on reconnect.
func (h *Hub) Publish(_ context.Context, cycleID string, signals []model.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	dtos := make([]SignalDTO, 0, len(signals))
	for _, s := range signals {
		dtos = append(dtos, toDTO(s))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	data, err := json.Marshal(Envelope{Type: "signals", Seq: h.seq, CycleID: cycleID, TS: h.now(), Signals: dtos})
	if err != nil {
		h.seq--
		return fmt.Errorf("encode envelope: %w", err)
	}
	h.replay.Push(h.seq, data)

	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.log.Warn("ws clients too slow, batch dropped", slog.Int("clients", dropped), slog.Int64("seq", h.seq))
	}
	return nil
}

// HandleWS upgrades the request. ?last_seq=N replays buffered batches newer than N.
func (h *Hub) HandleWS(c echo.Context) error {
	var lastSeq int64 = -1
	if v := c.QueryParam("last_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorBody{Message: "last_seq must be an integer"})
		}
		lastSeq = n
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return nil
	}

	client := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if lastSeq >= 0 {
		for _, data := range h.replay.After(lastSeq) {
			select {
			case client.send <- markReplay(data):
			default:
			}
		}
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", slog.Int("clients", count))

	go client.writePump()
	go client.readPump()
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.log.Info("ws client disconnected", slog.Int("clients", len(h.clients)))
}

func markReplay(data []byte) []byte {
	var env Envelope
	if json.Unmarshal(data, &env) != nil {
		return data
	}
	env.Replay = true
	out, err := json.Marshal(env)
	if err != nil {
		return data
	}
	return out
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames and {"ping":n} heartbeats.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var hb struct {
			Ping int64 `json:"ping"`
		}
		if json.Unmarshal(msg, &hb) != nil || hb.Ping == 0 {
			continue
		}
		pong, _ := json.Marshal(map[string]int64{"pong": hb.Ping, "server_ts": time.Now().UnixMilli()})

		c.hub.mu.RLock()
		if _, ok := c.hub.clients[c]; ok {
			select {
			case c.send <- pong:
			default:
			}
		}
		c.hub.mu.RUnlock()
	}
}
