/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the Session struct: the ephemeral binding of one live
connection to an authenticated user, plus the buffered outbound queue the
transport drains. Delivery is fire-and-forget: a full queue drops the event
rather than blocking the hub.
*/
package chat

import (
	"github.com/rs/zerolog"

	"pulsechat/internal/app/user"
	"pulsechat/internal/pkg/logx"
)

// sendQueueSize is the capacity of a session's outbound queue.
const sendQueueSize = 256

// Session binds one live connection to at most one authenticated user.
// A user may hold several concurrent sessions (multiple devices); each
// session is in at most one room at a time. All fields besides the queue
// are guarded by the hub lock.
type Session struct {
	connID string

	// user is nil until the connection authenticates.
	user *user.User

	// room is the id of the room this connection currently subscribes to,
	// or "" if none.
	room string

	// queue holds encoded outbound events awaiting the transport.
	queue chan []byte

	// closed marks the queue as closed so disconnect stays idempotent.
	closed bool

	logger zerolog.Logger
}

func newSession(connID string) *Session {
	sessionLogger := logx.Logger().With().
		Str("conn_id", connID).
		Logger()

	return &Session{
		connID: connID,
		queue:  make(chan []byte, sendQueueSize),
		logger: sessionLogger,
	}
}

// ConnID returns the connection identifier the session is keyed by.
func (s *Session) ConnID() string {
	return s.connID
}

// Queue exposes the outbound queue for the transport's write loop. The
// channel is closed when the session is released.
func (s *Session) Queue() <-chan []byte {
	return s.queue
}

// send encodes an event and enqueues it without blocking.
func (s *Session) send(t EventType, payload any) {
	data, err := encodeEvent(t, payload)
	if err != nil {
		s.logger.Error().Err(err).
			Str("event_type", string(t)).
			Msg("Error encoding outbound event")
		return
	}

	s.enqueue(data, t)
}

// enqueue queues an already-encoded event without blocking. Slow consumers
// lose events instead of stalling the hub.
func (s *Session) enqueue(data []byte, t EventType) {
	if s.closed {
		return
	}

	select {
	case s.queue <- data:
	default:
		s.logger.Warn().
			Str("event_type", string(t)).
			Int("queue_len", len(s.queue)).
			Msg("Session queue full, dropping event")
	}
}

// sendError delivers an error event to this connection only.
func (s *Session) sendError(code int, message string) {
	s.send(EventError, ErrorPayload{Code: code, Message: message})
}

// release closes the outbound queue exactly once.
func (s *Session) release() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}
