// Package websocket streams lab activity to connected browsers. Each
// connection follows one laboratory.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/labflow/labflow/internal/platform/auth"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Client is one live connection. Messages that do not fit in Send are
// dropped for that client.
type Client struct {
	ID    string
	LabID string
	Send  chan []byte
}

func NewClient(labID string) *Client {
	return &Client{ID: uuid.New().String(), LabID: labID, Send: make(chan []byte, sendBuffer)}
}

// Hub tracks clients by laboratory. It is an events.Publisher keyed by lab id.
type Hub struct {
	mu     sync.RWMutex
	labs   map[string]map[*Client]struct{}
	logger zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{labs: make(map[string]map[*Client]struct{}), logger: logger}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.labs[c.LabID] == nil {
		h.labs[c.LabID] = make(map[*Client]struct{})
	}
	h.labs[c.LabID][c] = struct{}{}
}

// Unregister removes c and closes its Send channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.labs[c.LabID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.labs, c.LabID)
	}
	close(c.Send)
}

// Publish encodes event once and queues it for every client following the
// lab named by key. It never blocks on a slow client.
func (h *Hub) Publish(_ context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode live event: %w", err)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.labs[key] {
		select {
		case c.Send <- data:
		default:
			h.logger.Debug().Str("client", c.ID).Str("lab_id", key).Msg("live feed buffer full, dropping event")
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for lab, clients := range h.labs {
		for c := range clients {
			close(c.Send)
		}
		delete(h.labs, lab)
	}
}

// Clients returns how many connections follow labID.
func (h *Hub) Clients(labID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.labs[labID])
}

// Handler upgrades GET /labs/:lab_id/activities/live to a websocket.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts upgrades from the given origins; an empty list accepts
// any origin.
func NewHandler(hub *Hub, origins []string) *Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleReception, auth.RoleLabTech, auth.RolePathologist, auth.RoleCashier))
	g.GET("/labs/:lab_id/activities/live", h.Connect)
}

func (h *Handler) Connect(c echo.Context) error {
	labID, err := uuid.Parse(c.Param("lab_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lab_id")
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(labID.String())
	h.hub.Register(client)

	go writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

// readPump only watches for the peer going away; clients send nothing.
func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()
	for {
		select {
		case msg, ok := <-client.Send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(gorillawebsocket.CloseMessage, nil)
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
