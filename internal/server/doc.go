// Package server implements the session and broadcast engine of GoChat and the
// WebSocket transport in front of it.
//
// The Hub owns the session registry, the rolling message history and the
// per-connection rate limiter, and processes every inbound event on a single
// goroutine. Clients, routing, configuration and HTTP handlers live in their
// own files to keep the engine independent of the transport.
package server
