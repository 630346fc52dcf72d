// Package server manages individual WebSocket clients, handling read/write
// pumps, event decoding, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Client is the WebSocket implementation of Conn. Inbound frames are decoded
// into events and handed to the hub; outbound events are queued on a buffered
// channel drained by the write pump.
type Client struct {
	id             string
	conn           *websocket.Conn
	hub            *Hub
	addr           string
	maxMessageSize int64
	log            zerolog.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewClient creates a new Client for conn with a fresh connection id.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config, log zerolog.Logger) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	bufferSize := cfg.SendBufferSize
	if bufferSize <= 0 {
		bufferSize = 256
	}
	id := uuid.NewString()

	return &Client{
		id:             id,
		conn:           conn,
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		log:            log.With().Str("conn", id).Str("addr", addr).Logger(),
		send:           make(chan []byte, bufferSize),
	}
}

// ID returns the connection id assigned at upgrade time.
func (c *Client) ID() string { return c.id }

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Send encodes ev and queues it without blocking. When the buffer is full the
// connection is considered too slow and is closed.
func (c *Client) Send(ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		c.log.Warn().Msg("Send buffer full; closing connection")
		c.closeLocked()
		if c.conn != nil {
			go c.closeConnection()
		}
		return ErrSendBufferFull
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("Frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info().Err(err).Msg("Client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info().Err(err).Msg("Client connection closed")
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn().Err(err).Msg("Unexpected WebSocket error")
	default:
		c.log.Warn().Err(err).Msg("WebSocket read error")
	}
}

// processFrame decodes a raw frame and forwards it to the hub. Malformed frames
// are answered directly with an InvalidMessage error.
func (c *Client) processFrame(raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		c.log.Debug().Err(err).Msg("Invalid frame")
		if sendErr := c.Send(Event{Type: EventError, Payload: ErrInvalidMessage.Payload()}); sendErr != nil {
			c.log.Debug().Err(sendErr).Msg("Error reporting invalid frame")
		}
		return true
	}
	if env.Event == EventDisconnect {
		return false
	}

	return c.hub.Dispatch(Inbound{ConnID: c.id, Type: env.Event, Data: env.Data})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c.id)
		c.closeConnection()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if !c.processFrame(raw) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("Error closing connection")
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("Error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	return c.writeTextMessage(message)
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Debug().Err(err).Msg("Error writing close message")
	}
	return false
}

// writeTextMessage writes a frame, coalescing any queued events separated by newlines
func (c *Client) writeTextMessage(message []byte) bool {
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Warn().Err(err).Msg("Error creating writer")
		return false
	}

	if _, err := w.Write(message); err != nil {
		c.log.Warn().Err(err).Msg("Error writing message")
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		queued, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			c.log.Warn().Err(err).Msg("Error writing newline")
			return false
		}
		if _, err := w.Write(queued); err != nil {
			c.log.Warn().Err(err).Msg("Error writing queued message")
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Warn().Err(err).Msg("Error closing writer")
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn().Err(err).Msg("Error writing ping message")
		return false
	}
	return true
}
