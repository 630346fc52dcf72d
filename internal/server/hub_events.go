package server

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
)

func (h *Hub) handleJoin(conn Conn, in Inbound) error {
	var payload JoinPayload
	if err := decodePayload(in.Data, &payload); err != nil {
		return ErrInvalidUsername
	}

	now := h.now()
	session, err := h.registry.Join(conn.ID(), payload.Username, now)
	if err != nil {
		return err
	}

	h.unicast(conn, Event{Type: EventHistory, Payload: h.store.Recent(h.replay)})
	h.broadcast(Event{
		Type:    EventPresenceJoined,
		Payload: PresencePayload{DisplayName: session.DisplayName, Timestamp: now},
	}, conn.ID())
	h.broadcastParticipantCount()

	h.log.Info().Str("conn", conn.ID()).Str("name", session.DisplayName).Msg("Participant joined the chat")
	return nil
}

func (h *Hub) handleSend(conn Conn, in Inbound) error {
	session, ok := h.registry.Get(conn.ID())
	if !ok {
		return ErrMustJoinFirst
	}

	now := h.now()
	if !h.limiter.Allow(conn.ID(), now) {
		h.log.Warn().Str("conn", conn.ID()).Msg("Rate limit exceeded; discarding message")
		return ErrRateLimited
	}

	var payload SendPayload
	if err := decodePayload(in.Data, &payload); err != nil {
		return ErrInvalidMessage
	}
	if !h.policy.Validate(payload.Content) {
		return ErrInvalidMessage
	}

	content := h.policy.Filter(h.policy.Sanitize(payload.Content))
	id, err := h.newID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	msg := Message{
		ID:                 id,
		Content:            content,
		AuthorName:         session.DisplayName,
		AuthorConnectionID: session.ConnectionID,
		Timestamp:          now,
	}
	h.store.Append(msg)
	h.broadcast(Event{Type: EventMessage, Payload: msg})
	return nil
}

// handleTyping relays a typing indicator. Signals from connections that have
// not joined are ignored.
func (h *Hub) handleTyping(isTyping bool) handlerFunc {
	return func(conn Conn, _ Inbound) error {
		session, ok := h.registry.Get(conn.ID())
		if !ok {
			return nil
		}
		h.broadcast(Event{
			Type:    EventPresenceTyping,
			Payload: TypingPayload{DisplayName: session.DisplayName, IsTyping: isTyping},
		}, conn.ID())
		return nil
	}
}

// disconnect removes the connection and, when it had joined, its session and
// rate state. Only joined connections produce presence events.
func (h *Hub) disconnect(id string) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("conn", id).Interface("panic", r).Msg("Recovered from panic during disconnect")
		}
	}()

	if conn, ok := h.conns[id]; ok {
		delete(h.conns, id)
		h.connCount.Store(int64(len(h.conns)))
		conn.Close()
		h.log.Info().Str("conn", id).Int("connections", len(h.conns)).Msg("Connection unregistered")
	}

	session, ok := h.registry.Leave(id)
	if !ok {
		return
	}
	h.limiter.Evict(id)

	h.broadcast(Event{
		Type:    EventPresenceLeft,
		Payload: PresencePayload{DisplayName: session.DisplayName, Timestamp: h.now()},
	})
	h.broadcastParticipantCount()

	h.log.Info().Str("conn", id).Str("name", session.DisplayName).Msg("Participant left the chat")
}

func (h *Hub) broadcastParticipantCount() {
	h.broadcast(Event{Type: EventParticipantCount, Payload: h.registry.Count()})
}

// connSnapshot returns the current connections minus the excluded ids.
func (h *Hub) connSnapshot(exclude ...string) []Conn {
	conns := lo.Values(h.conns)
	if len(exclude) == 0 {
		return conns
	}
	return lo.Reject(conns, func(c Conn, _ int) bool {
		return lo.Contains(exclude, c.ID())
	})
}

func decodePayload(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
