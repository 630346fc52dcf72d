// Package server wires HTTP handlers into a ServeMux for the GoChat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for the status endpoint and the WebSocket endpoint.
func SetupRoutes(hs *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", hs.StatusHandler)
	mux.HandleFunc("/ws", hs.WebSocketHandler)
	return mux
}
