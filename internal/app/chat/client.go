/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the Client struct, representing an active WebSocket
connection. It manages the connection's lifecycle, the read and write pumps,
and the dispatch of inbound events to the hub.
*/
package chat

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pulsechat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	// File payloads travel inline, so this stays generous.
	maxMessageSize = 1 << 20
)

// Client wires one WebSocket connection to its hub session.
type Client struct {
	hub *Hub

	conn *websocket.Conn

	sess *Session

	logger zerolog.Logger
}

// NewClient constructs a Client for an upgraded connection and its session.
func NewClient(hub *Hub, conn *websocket.Conn, sess *Session) *Client {
	clientLogger := logx.Logger().With().
		Str("component", "client").
		Str("conn_id", sess.ConnID()).
		Logger()

	return &Client{
		hub:    hub,
		conn:   conn,
		sess:   sess,
		logger: clientLogger,
	}
}

// ReadPump reads frames from the connection until it closes, dispatching
// each inbound event to the hub. It performs full disconnect cleanup on exit.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		c.dispatch(frame)
	}
}

// cleanupOnDisconnect releases the session and closes the connection when
// the read pump terminates.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Connection cleanup starting")

	c.hub.Disconnect(c.sess)

	if err := c.conn.Close(); err != nil {
		c.logger.Error().Err(err).Msg("Connection close error")
	}
}

// dispatch parses the envelope and routes the event to the owning hub
// operation. Malformed frames and unknown event types are logged and
// dropped; the hub itself silently drops events from unauthenticated
// sessions.
func (c *Client) dispatch(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		return
	}

	switch env.Type {
	case EventAuth:
		var p AuthPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.Authenticate(c.sess, p)

	case EventJoinRoom:
		var p JoinRoomPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.JoinRoom(c.sess, p.RoomID)

	case EventSendMessage:
		var p SendMessagePayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.Publish(c.sess, p.RoomID, p.Content, p.Kind)

	case EventPrivateMessage:
		var p PrivateMessagePayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.SendPrivate(c.sess, p.ToUserID, p.Content)

	case EventTyping:
		var p TypingPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.SetTyping(c.sess, p.RoomID, p.IsTyping)

	case EventMessageReaction:
		var p ReactionPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.React(c.sess, p.MessageID, p.RoomID, p.Reaction)

	case EventMarkRead:
		var p MarkReadPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.MarkRead(c.sess, p.MessageID, p.RoomID)

	case EventFileUpload:
		var p FileUploadPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.PublishFile(c.sess, p)

	case EventUpdateStatus:
		var p StatusPayload
		if !c.decode(env, &p) {
			return
		}
		c.hub.UpdateStatus(c.sess, p.Status)

	case EventGetNotifications:
		c.hub.FetchNotifications(c.sess)

	default:
		c.logger.Warn().Str("event_type", string(env.Type)).Msg("Client sent unsupported event type")
	}
}

// decode unmarshals the envelope payload into dst, logging and rejecting
// malformed payloads.
func (c *Client) decode(env Envelope, dst any) bool {
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		c.logger.Warn().Err(err).
			Str("event_type", string(env.Type)).
			Msg("Client sent invalid event payload")
		return false
	}
	return true
}

// WritePump drains the session queue onto the connection and keeps the
// heartbeat alive. It exits when the queue closes or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case data, ok := <-c.sess.Queue():
			if !c.writeQueuedEvent(data, ok) {
				return
			}

		case <-ticker.C:
			if !c.writePing() {
				return
			}
		}
	}
}

// writeQueuedEvent writes one queued event to the connection. Returns false
// when the write pump should terminate.
func (c *Client) writeQueuedEvent(data []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			c.logger.Error().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePing sends the periodic heartbeat. Returns false on write failure.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
