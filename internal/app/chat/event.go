/*
Package chat contains the in-memory coordination core for the chat server.

This file defines the tagged event vocabulary exchanged over a connection:
the envelope shared by both directions, the inbound payload variants parsed
at the boundary, and the outbound payload shapes.
*/
package chat

import (
	"encoding/json"

	"pulsechat/internal/app/user"
)

// EventType tags the envelope of every inbound and outbound event.
type EventType string

// Inbound event types.
const (
	// EventAuth covers both registration and login; the payload's isNewUser
	// flag selects the path.
	EventAuth             EventType = "auth"
	EventJoinRoom         EventType = "join_room"
	EventSendMessage      EventType = "send_message"
	EventPrivateMessage   EventType = "private_message"
	EventTyping           EventType = "typing"
	EventMessageReaction  EventType = "message_reaction"
	EventMarkRead         EventType = "mark_read"
	EventFileUpload       EventType = "file_upload"
	EventUpdateStatus     EventType = "update_status"
	EventGetNotifications EventType = "get_notifications"
)

// Outbound event types. EventPrivateMessage and EventMessageReaction are
// reused on the outbound side.
const (
	EventAuthSuccess      EventType = "auth_success"
	EventAuthError        EventType = "auth_error"
	EventReceiveMessage   EventType = "receive_message"
	EventRoomMessages     EventType = "room_messages"
	EventRoomJoined       EventType = "room_joined"
	EventUserList         EventType = "user_list"
	EventRoomUsers        EventType = "room_users"
	EventUserStatusUpdate EventType = "user_status_update"
	EventTypingUsers      EventType = "typing_users"
	EventMessageRead      EventType = "message_read"
	EventNotifications    EventType = "notifications"
	EventError            EventType = "error"
)

// Envelope is the wire frame for inbound events. The payload stays raw until
// the dispatch switch selects the matching variant.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// encodeEvent marshals an outbound event into its wire form.
func encodeEvent(t EventType, payload any) ([]byte, error) {
	return json.Marshal(struct {
		Type    EventType `json:"type"`
		Payload any       `json:"payload,omitempty"`
	}{
		Type:    t,
		Payload: payload,
	})
}

// AuthPayload carries registration or login input.
type AuthPayload struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	IsNewUser bool   `json:"isNewUser"`
}

// JoinRoomPayload selects the room to join.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// SendMessagePayload carries a room message. Kind defaults to text.
type SendMessagePayload struct {
	RoomID  string      `json:"roomId"`
	Content string      `json:"content"`
	Kind    MessageKind `json:"kind,omitempty"`
}

// PrivateMessagePayload carries a point-to-point message.
type PrivateMessagePayload struct {
	ToUserID string `json:"toUserId"`
	Content  string `json:"content"`
}

// TypingPayload signals the start or stop of typing in a room.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// ReactionPayload adds the sender to a reaction set on a message.
type ReactionPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Reaction  string `json:"reaction"`
}

// MarkReadPayload adds the sender to a message's read set.
type MarkReadPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// FileUploadPayload carries a file message with inline payload bytes.
// No maximum size is enforced.
type FileUploadPayload struct {
	RoomID   string `json:"roomId"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
	FileData string `json:"fileData"`
}

// StatusPayload carries a user-selected availability status.
type StatusPayload struct {
	Status user.Status `json:"status"`
}

// AuthSuccessPayload is sent to the connection after successful
// registration or login.
type AuthSuccessPayload struct {
	Token string    `json:"token"`
	User  user.User `json:"user"`
}

// AuthErrorPayload is sent to the connection when authentication fails.
type AuthErrorPayload struct {
	Message string `json:"message"`
}

// ErrorPayload is sent to the originating connection only, never broadcast.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RoomMessagesPayload is the history snapshot sent to a joining connection.
type RoomMessagesPayload struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}

// RoomInfo describes a room without its membership or log.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoomUsersPayload carries a room's current membership set (user ids).
type RoomUsersPayload struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

// StatusUpdatePayload announces a user's status change to all connections.
type StatusUpdatePayload struct {
	UserID string      `json:"userId"`
	Status user.Status `json:"status"`
}

// TypingUsersPayload carries the full list of distinct usernames currently
// typing in a room.
type TypingUsersPayload struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

// ReactionUpdatePayload carries the updated member set for a single reaction.
type ReactionUpdatePayload struct {
	MessageID string   `json:"messageId"`
	Reaction  string   `json:"reaction"`
	Users     []string `json:"users"`
}

// ReadUpdatePayload carries the updated read set for a message.
type ReadUpdatePayload struct {
	MessageID string   `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}
