// Package server exposes HTTP handlers, including WebSocket upgrades and the
// status endpoint.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Handlers groups the HTTP endpoints served in front of a Hub.
type Handlers struct {
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
	admit    *rate.Limiter
	log      zerolog.Logger
}

// StatusResponse is the body returned by the status endpoint.
type StatusResponse struct {
	Message       string `json:"message"`
	Running       bool   `json:"running"`
	ActiveUsers   int    `json:"activeUsers"`
	TotalMessages int    `json:"totalMessages"`
}

// NewHandlers creates the HTTP handlers for hub.
func NewHandlers(hub *Hub, cfg Config, log zerolog.Logger) *Handlers {
	origins := NewOriginPolicy(cfg.Origins(), log)
	perSec := cfg.UpgradesPerSec
	if perSec <= 0 {
		perSec = 20
	}

	return &Handlers{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.CheckOrigin,
		},
		admit: rate.NewLimiter(rate.Limit(perSec), perSec),
		log:   log,
	}
}

// WebSocketHandler handles WebSocket upgrade requests and manages client connections.
// It validates that the request uses the GET method, throttles upgrade bursts,
// upgrades the HTTP connection to WebSocket and registers a new Client with the hub.
func (hs *Handlers) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !hs.admit.Allow() {
		hs.log.Warn().Str("addr", r.RemoteAddr).Msg("Rejecting WebSocket upgrade: too many connection attempts")
		http.Error(w, "Too many connection attempts", http.StatusTooManyRequests)
		return
	}

	conn, err := hs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hs.log.Warn().Err(err).Str("addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	client := NewClient(conn, hs.hub, r.RemoteAddr, hs.cfg, hs.log)

	// The hub launches the pump goroutines once the client is registered.
	if !hs.hub.Register(client) {
		client.closeConnection()
	}
}

// StatusHandler reports whether the hub is running along with participant and
// message counts.
func (hs *Handlers) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	status := StatusResponse{
		Message:       "Chat Server is running",
		Running:       hs.hub.Running(),
		ActiveUsers:   hs.hub.Registry().Count(),
		TotalMessages: hs.hub.Store().Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		hs.log.Warn().Err(err).Msg("Error writing status response")
	}
}
