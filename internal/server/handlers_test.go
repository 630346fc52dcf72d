package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/gochat/internal/server"
)

func TestStatusHandler(t *testing.T) {
	req := require.New(t)
	cfg := server.DefaultConfig()
	hub, err := server.NewHub(cfg)
	req.NoError(err)
	handlers := server.NewHandlers(hub, cfg, zerolog.Nop())

	rr := httptest.NewRecorder()
	handlers.StatusHandler(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	req.Equal(http.StatusOK, rr.Code)
	req.Equal("application/json", rr.Header().Get("Content-Type"))

	var status server.StatusResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &status))
	req.Equal(server.StatusResponse{
		Message:       "Chat Server is running",
		Running:       true,
		ActiveUsers:   0,
		TotalMessages: 0,
	}, status)
}

func TestStatusHandlerAfterShutdown(t *testing.T) {
	req := require.New(t)
	cfg := server.DefaultConfig()
	hub, err := server.NewHub(cfg)
	req.NoError(err)
	server.StartHub(hub)
	req.NoError(hub.Shutdown(time.Second))

	rr := httptest.NewRecorder()
	server.SetupRoutes(server.NewHandlers(hub, cfg, zerolog.Nop())).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	var status server.StatusResponse
	req.NoError(json.Unmarshal(rr.Body.Bytes(), &status))
	req.False(status.Running)
}

func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	cfg := server.DefaultConfig()
	hub, err := server.NewHub(cfg)
	require.NoError(t, err)
	mux := server.SetupRoutes(server.NewHandlers(hub, cfg, zerolog.Nop()))

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, httptest.NewRequest(method, "/ws", http.NoBody))
			require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
		})
	}
}

func TestCreateServer(t *testing.T) {
	req := require.New(t)
	mux := http.NewServeMux()

	srv := server.CreateServer(":8080", mux)

	req.Equal(":8080", srv.Addr)
	req.Equal(mux, srv.Handler)
	req.Equal(15*time.Second, srv.ReadTimeout)
	req.Equal(15*time.Second, srv.WriteTimeout)
	req.Equal(60*time.Second, srv.IdleTimeout)
}
